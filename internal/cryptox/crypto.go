// Package cryptox implements the authenticated-encryption primitive shared by
// the key vault and the envelope cipher, together with the three-part hex
// record ("iv:authTag:ciphertext") both of them persist.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm names an AEAD construction.
type Algorithm string

const (
	AlgorithmAESGCM           Algorithm = "aes-256-gcm"
	AlgorithmChaCha20Poly1305 Algorithm = "chacha20-poly1305"
)

const (
	// KeySize is the length of every key used by this package (256 bit).
	KeySize = 32
	// NonceSize is the IV length. Both algorithms use 96-bit nonces.
	NonceSize = 12
	// TagSize is the authentication tag length of both algorithms.
	TagSize = 16
)

// recordSeparator joins the hex parts of a Record.
const recordSeparator = ":"

var ErrUnknownAlgorithm = errors.New("unknown cipher algorithm")

// ParseAlgorithm maps a configuration value onto an Algorithm.
// An empty string selects AES-256-GCM.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlgorithmAESGCM:
		return AlgorithmAESGCM, nil
	case AlgorithmChaCha20Poly1305:
		return AlgorithmChaCha20Poly1305, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// NewAEAD builds the AEAD for alg keyed with key. The key must be KeySize bytes.
func NewAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: %d", len(key))
	}

	switch alg {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AlgorithmChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}

// GenerateKey returns a fresh random KeySize-byte key.
func GenerateKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// Record is the persisted unit of one AEAD encryption.
type Record struct {
	IV         []byte
	AuthTag    []byte
	Ciphertext []byte
}

// String renders the record as "<ivHex>:<authTagHex>:<ciphertextHex>".
// The hex alphabet never contains the separator.
func (r Record) String() string {
	return hex.EncodeToString(r.IV) + recordSeparator +
		hex.EncodeToString(r.AuthTag) + recordSeparator +
		hex.EncodeToString(r.Ciphertext)
}

// ParseRecord is the inverse of Record.String. It fails with
// common.ErrInvalidFormat unless s has exactly three hex parts with an IV of
// NonceSize bytes and a tag of TagSize bytes. The ciphertext part may be
// empty (empty plaintext).
func ParseRecord(s string) (Record, error) {
	parts := strings.Split(s, recordSeparator)
	if len(parts) != 3 {
		return Record{}, fmt.Errorf("%w: expected 3 parts, got %d", common.ErrInvalidFormat, len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != NonceSize {
		return Record{}, fmt.Errorf("%w: bad iv", common.ErrInvalidFormat)
	}

	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != TagSize {
		return Record{}, fmt.Errorf("%w: bad auth tag", common.ErrInvalidFormat)
	}

	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad ciphertext", common.ErrInvalidFormat)
	}

	return Record{IV: iv, AuthTag: tag, Ciphertext: ct}, nil
}

// SealWith encrypts plaintext with aead under a fresh random IV and splits
// the trailing tag off the ciphertext.
func SealWith(aead cipher.AEAD, plaintext []byte) (Record, error) {
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return Record{}, err
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - aead.Overhead()

	return Record{
		IV:         iv,
		AuthTag:    sealed[split:],
		Ciphertext: sealed[:split],
	}, nil
}

// OpenWith verifies and decrypts r. Any verification failure, including an
// IV or tag of the wrong size, yields common.ErrAuthentication and no
// plaintext.
func OpenWith(aead cipher.AEAD, r Record) ([]byte, error) {
	if len(r.IV) != aead.NonceSize() || len(r.AuthTag) != aead.Overhead() {
		return nil, common.ErrAuthentication
	}

	sealed := make([]byte, 0, len(r.Ciphertext)+len(r.AuthTag))
	sealed = append(sealed, r.Ciphertext...)
	sealed = append(sealed, r.AuthTag...)

	plaintext, err := aead.Open(nil, r.IV, sealed, nil)
	if err != nil {
		return nil, common.ErrAuthentication
	}
	return plaintext, nil
}

// Seal encrypts plaintext with a one-off AEAD for alg and key.
func Seal(alg Algorithm, key, plaintext []byte) (Record, error) {
	aead, err := NewAEAD(alg, key)
	if err != nil {
		return Record{}, err
	}
	return SealWith(aead, plaintext)
}

// Open decrypts r with a one-off AEAD for alg and key.
func Open(alg Algorithm, key []byte, r Record) ([]byte, error) {
	aead, err := NewAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	return OpenWith(aead, r)
}
