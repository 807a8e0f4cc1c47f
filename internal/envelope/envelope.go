// Package envelope implements envelope encryption of message and attachment
// content: every item is sealed under its own random data key, and that key
// is stored only in wrapped form (see package keyvault).
//
// Persisted form of a sealed item:
//
//	<ivHex>:<authTagHex>:<ciphertextHex>:::<wrapIvHex>:<wrapTagHex>:<wrappedKeyHex>
package envelope

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/cryptox"
	"github.com/dmitrijs2005/gophtalk/internal/keyvault"
)

// Separator joins the sealed payload and the wrapped key.
const Separator = ":::"

// Envelope is a sealed payload together with the wrapped data key that opens it.
type Envelope struct {
	Payload    cryptox.Record
	WrappedKey cryptox.Record
}

// String renders the envelope in its persisted form.
func (e Envelope) String() string {
	return e.Payload.String() + Separator + e.WrappedKey.String()
}

// ParseEnvelope splits s on the last Separator. The left half must be a
// strict payload record (common.ErrInvalidFormat otherwise) and the right
// half a wrapped key record (common.ErrKeyFormat otherwise).
func ParseEnvelope(s string) (Envelope, error) {
	i := strings.LastIndex(s, Separator)
	if i < 0 {
		return Envelope{}, fmt.Errorf("%w: missing key separator", common.ErrInvalidFormat)
	}

	payload, err := cryptox.ParseRecord(s[:i])
	if err != nil {
		return Envelope{}, err
	}

	key, err := keyvault.ParseWrappedKey(s[i+len(Separator):])
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{Payload: payload, WrappedKey: key}, nil
}

// Cipher seals and opens item payloads. It is stateless apart from the vault
// and safe for concurrent use.
type Cipher struct {
	vault *keyvault.Vault
	alg   cryptox.Algorithm
}

// NewCipher builds a Cipher that encrypts payloads with the vault's algorithm.
func NewCipher(vault *keyvault.Vault) *Cipher {
	return &Cipher{vault: vault, alg: vault.Algorithm()}
}

// SealMessage encrypts plaintext under a fresh data key and returns the
// "iv:authTag:ciphertext" record together with the raw key. The caller must
// wrap the key and wipe it.
func (c *Cipher) SealMessage(plaintext string) (string, []byte, error) {
	rec, key, err := c.seal([]byte(plaintext))
	if err != nil {
		return "", nil, err
	}
	return rec.String(), key, nil
}

// OpenMessage reverses SealMessage.
func (c *Cipher) OpenMessage(cipherText string, dataKey []byte) (string, error) {
	rec, err := cryptox.ParseRecord(cipherText)
	if err != nil {
		return "", err
	}
	pt, err := c.open(rec, dataKey)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// SealAttachment is SealMessage for binary content; the bytes are base64
// encoded before encryption.
func (c *Cipher) SealAttachment(data []byte) (string, []byte, error) {
	return c.SealMessage(base64.StdEncoding.EncodeToString(data))
}

// OpenAttachment reverses SealAttachment.
func (c *Cipher) OpenAttachment(cipherText string, dataKey []byte) ([]byte, error) {
	encoded, err := c.OpenMessage(cipherText, dataKey)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: attachment payload is not base64", common.ErrInvalidFormat)
	}
	return data, nil
}

// SealText seals a message body end to end: fresh key, encrypt, wrap, wipe.
func (c *Cipher) SealText(plaintext string) (Envelope, error) {
	return c.sealEnvelope([]byte(plaintext))
}

// OpenText opens an envelope produced by SealText.
func (c *Cipher) OpenText(e Envelope) (string, error) {
	pt, err := c.openEnvelope(e)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// SealBlob seals attachment bytes end to end.
func (c *Cipher) SealBlob(data []byte) (Envelope, error) {
	return c.sealEnvelope([]byte(base64.StdEncoding.EncodeToString(data)))
}

// OpenBlob opens an envelope produced by SealBlob.
func (c *Cipher) OpenBlob(e Envelope) ([]byte, error) {
	encoded, err := c.openEnvelope(e)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: attachment payload is not base64", common.ErrInvalidFormat)
	}
	return data, nil
}

func (c *Cipher) sealEnvelope(plaintext []byte) (Envelope, error) {
	payload, key, err := c.seal(plaintext)
	if err != nil {
		return Envelope{}, err
	}
	defer common.WipeByteArray(key)

	wrapped, err := c.vault.Wrap(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("wrap data key: %w", err)
	}

	return Envelope{Payload: payload, WrappedKey: wrapped}, nil
}

func (c *Cipher) openEnvelope(e Envelope) ([]byte, error) {
	key, err := c.vault.Unwrap(e.WrappedKey)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	return c.open(e.Payload, key)
}

func (c *Cipher) seal(plaintext []byte) (cryptox.Record, []byte, error) {
	key := cryptox.GenerateKey()
	rec, err := cryptox.Seal(c.alg, key, plaintext)
	if err != nil {
		common.WipeByteArray(key)
		return cryptox.Record{}, nil, err
	}
	return rec, key, nil
}

func (c *Cipher) open(rec cryptox.Record, key []byte) ([]byte, error) {
	if len(key) != cryptox.KeySize {
		return nil, common.ErrKeyFormat
	}
	return cryptox.Open(c.alg, key, rec)
}
