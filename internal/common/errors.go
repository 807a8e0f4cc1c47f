// Package common defines shared constants and sentinel errors used across
// the gophtalk packages. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors surfaced to callers as rejected operations.
	ErrorAccessDenied = errors.New("access denied")
	ErrorValidation   = errors.New("validation error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Stored ciphertext integrity errors. These describe data, not callers.
	ErrKeyFormat      = errors.New("malformed wrapped key record")
	ErrInvalidFormat  = errors.New("malformed cipher record")
	ErrAuthentication = errors.New("authentication tag mismatch")
)

// IsIntegrityError reports whether err describes a stored record that can
// not be decrypted: malformed key or payload records and failed tag checks.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrKeyFormat) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrAuthentication)
}
