package keyvault

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHexKey(t *testing.T) string {
	t.Helper()
	return hex.EncodeToString(common.GenerateRandByteArray(cryptox.KeySize))
}

func newVault(t *testing.T, masterHex string, retired ...string) *Vault {
	t.Helper()
	v, err := NewFromHex(cryptox.AlgorithmAESGCM, masterHex, retired...)
	require.NoError(t, err)
	return v
}

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	v := newVault(t, newHexKey(t))
	dataKey := cryptox.GenerateKey()

	wrapped, err := v.WrapString(dataKey)
	require.NoError(t, err)
	assert.NotContains(t, wrapped, hex.EncodeToString(dataKey))

	got, err := v.UnwrapString(wrapped)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(dataKey, got))
}

func TestUnwrap_DifferentMasterKeyFails(t *testing.T) {
	a := newVault(t, newHexKey(t))
	b := newVault(t, newHexKey(t))

	for i := 0; i < 50; i++ {
		wrapped, err := a.WrapString(cryptox.GenerateKey())
		require.NoError(t, err)

		got, err := b.UnwrapString(wrapped)
		require.ErrorIs(t, err, common.ErrAuthentication)
		require.Nil(t, got)
	}
}

func TestUnwrap_TamperedRecord(t *testing.T) {
	v := newVault(t, newHexKey(t))
	rec, err := v.Wrap(cryptox.GenerateKey())
	require.NoError(t, err)

	rec.Ciphertext[0] ^= 0x80
	_, err = v.Unwrap(rec)
	require.ErrorIs(t, err, common.ErrAuthentication)
}

func TestUnwrapString_KeyFormat(t *testing.T) {
	v := newVault(t, newHexKey(t))
	wrapped, err := v.WrapString(cryptox.GenerateKey())
	require.NoError(t, err)
	parts := strings.Split(wrapped, ":")

	for name, in := range map[string]string{
		"empty":        "",
		"two parts":    parts[0] + ":" + parts[1],
		"four parts":   wrapped + ":ab",
		"empty key":    parts[0] + ":" + parts[1] + ":",
		"empty iv":     ":" + parts[1] + ":" + parts[2],
		"not hex":      "xx:yy:zz",
		"short tag":    parts[0] + ":" + parts[1][:4] + ":" + parts[2],
		"pure garbage": "hello world",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.UnwrapString(in)
			require.ErrorIs(t, err, common.ErrKeyFormat)
		})
	}
}

func TestUnwrap_RetiredKeys(t *testing.T) {
	oldHex := newHexKey(t)
	old := newVault(t, oldHex)
	wrapped, err := old.WrapString(cryptox.GenerateKey())
	require.NoError(t, err)

	rotated := newVault(t, newHexKey(t), oldHex)
	_, err = rotated.UnwrapString(wrapped)
	require.NoError(t, err)

	// new wraps use the new primary only
	fresh, err := rotated.WrapString(cryptox.GenerateKey())
	require.NoError(t, err)
	_, err = old.UnwrapString(fresh)
	require.ErrorIs(t, err, common.ErrAuthentication)
}

func TestWrap_RejectsWrongSizedDataKey(t *testing.T) {
	v := newVault(t, newHexKey(t))
	_, err := v.Wrap([]byte("short"))
	require.Error(t, err)
}

func TestNewFromHex_InvalidKeys(t *testing.T) {
	for _, k := range []string{"", "abc", strings.Repeat("0", 62), strings.Repeat("zz", 32)} {
		_, err := NewFromHex(cryptox.AlgorithmAESGCM, k)
		require.ErrorIs(t, err, ErrInvalidMasterKey, k)
	}

	_, err := NewFromHex(cryptox.AlgorithmAESGCM, newHexKey(t), "bad")
	require.ErrorIs(t, err, ErrInvalidMasterKey)
}

func TestNew_WipesCallerKey(t *testing.T) {
	key := cryptox.GenerateKey()
	_, err := New(cryptox.AlgorithmChaCha20Poly1305, key)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, cryptox.KeySize), key)
}

func TestVault_NeverPrintsKey(t *testing.T) {
	masterHex := newHexKey(t)
	v := newVault(t, masterHex)

	for _, s := range []string{
		fmt.Sprintf("%v", v),
		fmt.Sprintf("%+v", v),
		fmt.Sprintf("%#v", v),
		fmt.Sprint(v),
	} {
		assert.Equal(t, redacted, s)
		assert.NotContains(t, s, masterHex)
	}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("boot", "vault", v)
	assert.Contains(t, buf.String(), "REDACTED")
	assert.NotContains(t, buf.String(), masterHex)
}
