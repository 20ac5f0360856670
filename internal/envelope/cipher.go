// Package envelope implements envelope encryption for private medical profiles.
//
// Each write encrypts the record with a fresh 256-bit content key (AES-256-GCM)
// and stores that key wrapped under the service's RSA master key
// (RSA-OAEP with SHA-256). The master key never encrypts record data directly.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	dErrors "instahelp/pkg/domain-errors"
)

// ContentKeySize is the AES-256 key length in bytes.
const ContentKeySize = 32

// Cipher holds the master key pair. Either half may be absent: a process that
// only loaded the public key can seal but not open.
type Cipher struct {
	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

type Option func(*Cipher)

// WithPrivateKey sets the private key, and the public key derived from it.
func WithPrivateKey(key *rsa.PrivateKey) Option {
	return func(c *Cipher) {
		if key == nil {
			return
		}
		c.private = key
		c.public = &key.PublicKey
	}
}

// WithPublicKey sets only the public key.
func WithPublicKey(key *rsa.PublicKey) Option {
	return func(c *Cipher) {
		if key != nil {
			c.public = key
		}
	}
}

func New(opts ...Option) *Cipher {
	c := &Cipher{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready reports whether both halves of the master key pair are loaded.
func (c *Cipher) Ready() bool {
	return c != nil && c.public != nil && c.private != nil
}

// GenerateContentKey returns a new random 256-bit content key.
func GenerateContentKey() ([]byte, error) {
	key := make([]byte, ContentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate content key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != ContentKeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "content key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// Encrypt seals plaintext under key with a random nonce.
func Encrypt(plaintext, key []byte) (Envelope, error) {
	aead, err := newGCM(key)
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - tagSize
	return Envelope{
		Nonce:      nonce,
		Tag:        append([]byte(nil), sealed[split:]...),
		Ciphertext: append([]byte(nil), sealed[:split]...),
	}, nil
}

// Decrypt opens env under key. A tag that does not verify (tampering or the
// wrong key) yields CodeIntegrity and no plaintext.
func Decrypt(env Envelope, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != nonceSize || len(env.Tag) != tagSize {
		return nil, dErrors.New(dErrors.CodeIntegrity, "malformed envelope")
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+tagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)
	plaintext, err := aead.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeIntegrity, "authentication tag mismatch")
	}
	return plaintext, nil
}

// WrapKey encrypts a content key under the master public key.
func (c *Cipher) WrapKey(contentKey []byte) (string, error) {
	if c == nil || c.public == nil {
		return "", dErrors.New(dErrors.CodeKeyUnavailable, "master public key not loaded")
	}
	if len(contentKey) != ContentKeySize {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content key must be 32 bytes")
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, c.public, contentKey, nil)
	if err != nil {
		return "", fmt.Errorf("wrap content key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey recovers a content key with the master private key.
func (c *Cipher) UnwrapKey(wrapped string) ([]byte, error) {
	if c == nil || c.private == nil {
		return nil, dErrors.New(dErrors.CodeKeyUnavailable, "master private key not loaded")
	}
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeIntegrity, "malformed wrapped key")
	}
	key, err := rsa.DecryptOAEP(sha256.New(), nil, c.private, raw, nil)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeIntegrity, "wrapped key does not unwrap under master key")
	}
	if len(key) != ContentKeySize {
		return nil, dErrors.New(dErrors.CodeIntegrity, "unwrapped key has wrong length")
	}
	return key, nil
}

// EncryptRecord seals plaintext under a content key generated for this call
// only, and wraps that key. No content key is ever reused across writes.
func (c *Cipher) EncryptRecord(plaintext []byte) (Sealed, error) {
	if c == nil || c.public == nil {
		return Sealed{}, dErrors.New(dErrors.CodeKeyUnavailable, "master public key not loaded")
	}
	key, err := GenerateContentKey()
	if err != nil {
		return Sealed{}, err
	}
	defer clear(key)

	env, err := Encrypt(plaintext, key)
	if err != nil {
		return Sealed{}, err
	}
	wrapped, err := c.WrapKey(key)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{Ciphertext: env.String(), WrappedKey: wrapped}, nil
}

// DecryptRecord unwraps the content key and opens the envelope.
func (c *Cipher) DecryptRecord(sealed Sealed) ([]byte, error) {
	if c == nil || c.private == nil {
		return nil, dErrors.New(dErrors.CodeKeyUnavailable, "master private key not loaded")
	}
	env, err := ParseEnvelope(sealed.Ciphertext)
	if err != nil {
		return nil, err
	}
	key, err := c.UnwrapKey(sealed.WrappedKey)
	if err != nil {
		return nil, err
	}
	defer clear(key)
	return Decrypt(env, key)
}
