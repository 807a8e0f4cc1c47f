// Package keyvault holds the deployment master key and wraps/unwraps the
// short-lived data keys used by the envelope cipher. Nothing outside this
// package ever sees the master key: a Vault keeps only the keyed AEAD
// instances and redacts itself when printed or logged.
package keyvault

import (
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/cryptox"
)

const redacted = "keyvault.Vault{REDACTED}"

// ErrInvalidMasterKey is returned when a master key is missing or is not
// 32 bytes of hex.
var ErrInvalidMasterKey = errors.New("master key must be 64 hex characters")

// Vault wraps data keys under the master key. It is safe for concurrent use.
type Vault struct {
	alg     cryptox.Algorithm
	primary cipher.AEAD
	retired []cipher.AEAD
}

// New builds a Vault from a raw master key. retired keys are accepted for
// Unwrap only, so records wrapped before a rotation stay readable.
// The caller's key slices are wiped before New returns.
func New(alg cryptox.Algorithm, masterKey []byte, retired ...[]byte) (*Vault, error) {
	defer common.WipeByteArray(masterKey)

	if len(masterKey) != cryptox.KeySize {
		return nil, ErrInvalidMasterKey
	}

	primary, err := cryptox.NewAEAD(alg, masterKey)
	if err != nil {
		return nil, err
	}

	v := &Vault{alg: alg, primary: primary}
	for _, k := range retired {
		if len(k) != cryptox.KeySize {
			common.WipeByteArray(k)
			return nil, ErrInvalidMasterKey
		}
		aead, err := cryptox.NewAEAD(alg, k)
		common.WipeByteArray(k)
		if err != nil {
			return nil, err
		}
		v.retired = append(v.retired, aead)
	}

	return v, nil
}

// NewFromHex decodes hex master keys (as supplied through MASTER_KEY) and
// calls New.
func NewFromHex(alg cryptox.Algorithm, masterKeyHex string, retiredHex ...string) (*Vault, error) {
	master, err := decodeKey(masterKeyHex)
	if err != nil {
		return nil, err
	}

	retired := make([][]byte, 0, len(retiredHex))
	for _, h := range retiredHex {
		k, err := decodeKey(h)
		if err != nil {
			common.WipeByteArray(master)
			return nil, err
		}
		retired = append(retired, k)
	}

	return New(alg, master, retired...)
}

func decodeKey(s string) ([]byte, error) {
	k, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(k) != cryptox.KeySize {
		common.WipeByteArray(k)
		return nil, ErrInvalidMasterKey
	}
	return k, nil
}

// Algorithm reports the AEAD the vault was built with.
func (v *Vault) Algorithm() cryptox.Algorithm {
	return v.alg
}

// Wrap encrypts dataKey under the primary master key with a fresh IV.
func (v *Vault) Wrap(dataKey []byte) (cryptox.Record, error) {
	if len(dataKey) != cryptox.KeySize {
		return cryptox.Record{}, fmt.Errorf("invalid data key size: %d", len(dataKey))
	}
	return cryptox.SealWith(v.primary, dataKey)
}

// WrapString is Wrap rendered as "iv:authTag:wrappedKey".
func (v *Vault) WrapString(dataKey []byte) (string, error) {
	rec, err := v.Wrap(dataKey)
	if err != nil {
		return "", err
	}
	return rec.String(), nil
}

// Unwrap recovers the data key from rec. It returns common.ErrKeyFormat for
// a record that can not hold a wrapped key, and common.ErrAuthentication if
// no master key known to the vault verifies the tag.
func (v *Vault) Unwrap(rec cryptox.Record) ([]byte, error) {
	if len(rec.IV) != cryptox.NonceSize || len(rec.AuthTag) != cryptox.TagSize || len(rec.Ciphertext) == 0 {
		return nil, common.ErrKeyFormat
	}

	key, err := cryptox.OpenWith(v.primary, rec)
	for i := 0; err != nil && i < len(v.retired); i++ {
		key, err = cryptox.OpenWith(v.retired[i], rec)
	}
	if err != nil {
		return nil, common.ErrAuthentication
	}

	if len(key) != cryptox.KeySize {
		common.WipeByteArray(key)
		return nil, common.ErrKeyFormat
	}
	return key, nil
}

// UnwrapString parses a wrapped key record and unwraps it.
func (v *Vault) UnwrapString(s string) ([]byte, error) {
	rec, err := ParseWrappedKey(s)
	if err != nil {
		return nil, err
	}
	return v.Unwrap(rec)
}

// ParseWrappedKey parses "iv:authTag:wrappedKey". Anything other than three
// non-empty, well-sized hex parts is common.ErrKeyFormat.
func ParseWrappedKey(s string) (cryptox.Record, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return cryptox.Record{}, common.ErrKeyFormat
	}
	for _, p := range parts {
		if p == "" {
			return cryptox.Record{}, common.ErrKeyFormat
		}
	}

	rec, err := cryptox.ParseRecord(s)
	if err != nil {
		return cryptox.Record{}, common.ErrKeyFormat
	}
	return rec, nil
}

// String implements fmt.Stringer without exposing key material.
func (v *Vault) String() string { return redacted }

// GoString implements fmt.GoStringer so %#v is redacted as well.
func (v *Vault) GoString() string { return redacted }

// LogValue implements slog.LogValuer.
func (v *Vault) LogValue() slog.Value { return slog.StringValue(redacted) }
