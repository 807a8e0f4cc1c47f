package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	t.Setenv("MASTER_KEY", testMasterKey)
	t.Setenv("PREVIOUS_MASTER_KEYS", "aa, bb")
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("SECRET_KEY", "env-secret")
	t.Setenv("ALLOWED_MIME_TYPES", "image/png,application/pdf")
	t.Setenv("MAX_ATTACHMENT_SIZE", "2048")
	t.Setenv("LOG_LEVEL", "warn")

	c := &Config{}
	c.LoadDefaults()
	parseEnv(c)

	assert.Equal(t, testMasterKey, c.MasterKey)
	assert.Equal(t, []string{"aa", "bb"}, c.PreviousMasterKeys)
	assert.Equal(t, "postgres://env", c.DatabaseDSN)
	assert.Equal(t, "env-secret", c.SecretKey)
	assert.Equal(t, []string{"image/png", "application/pdf"}, c.AllowedMimeTypes)
	assert.Equal(t, int64(2048), c.MaxAttachmentSize)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestParseEnv_BadSizePanics(t *testing.T) {
	t.Setenv("MAX_ATTACHMENT_SIZE", "ten megabytes")

	c := &Config{}
	require.Panics(t, func() { parseEnv(c) })
}
