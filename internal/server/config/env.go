package config

import (
	"os"
	"strconv"
)

// parseEnv overlays settings supplied by the hosting environment:
//
//	MASTER_KEY            hex master key (required)
//	PREVIOUS_MASTER_KEYS  comma separated retired hex keys
//	DATABASE_DSN          PostgreSQL DSN
//	SECRET_KEY            JWT HMAC secret
//	ALLOWED_MIME_TYPES    comma separated attachment allow-list
//	MAX_ATTACHMENT_SIZE   attachment size limit in bytes
//	LOG_LEVEL             debug, info, warn or error
//
// A malformed MAX_ATTACHMENT_SIZE panics, like a malformed config file.
func parseEnv(config *Config) {
	if v, ok := os.LookupEnv("MASTER_KEY"); ok {
		config.MasterKey = v
	}
	if v, ok := os.LookupEnv("PREVIOUS_MASTER_KEYS"); ok {
		config.PreviousMasterKeys = splitList(v)
	}
	if v, ok := os.LookupEnv("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("SECRET_KEY"); ok {
		config.SecretKey = v
	}
	if v, ok := os.LookupEnv("ALLOWED_MIME_TYPES"); ok {
		config.AllowedMimeTypes = splitList(v)
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		config.LogLevel = v
	}
	if v, ok := os.LookupEnv("MAX_ATTACHMENT_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(err)
		}
		config.MaxAttachmentSize = n
	}
}
