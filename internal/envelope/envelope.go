package envelope

import (
	"encoding/hex"
	"strings"

	dErrors "instahelp/pkg/domain-errors"
)

const (
	nonceSize = 12
	tagSize   = 16
	separator = ":"
)

// Envelope is one AES-256-GCM encryption: a random nonce, the authentication
// tag, and the ciphertext, kept as separate fields so the persisted form can
// be split without knowing the ciphertext length.
type Envelope struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// String renders the persisted form: hex(nonce):hex(tag):hex(ciphertext).
func (e Envelope) String() string {
	return hex.EncodeToString(e.Nonce) + separator +
		hex.EncodeToString(e.Tag) + separator +
		hex.EncodeToString(e.Ciphertext)
}

// ParseEnvelope decodes the persisted form. A malformed envelope is treated
// as an integrity failure: nothing is decrypted from it.
func ParseEnvelope(s string) (Envelope, error) {
	parts := strings.Split(s, separator)
	if len(parts) != 3 {
		return Envelope{}, dErrors.New(dErrors.CodeIntegrity, "malformed envelope")
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return Envelope{}, dErrors.New(dErrors.CodeIntegrity, "malformed envelope nonce")
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return Envelope{}, dErrors.New(dErrors.CodeIntegrity, "malformed envelope tag")
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return Envelope{}, dErrors.New(dErrors.CodeIntegrity, "malformed envelope ciphertext")
	}
	return Envelope{Nonce: nonce, Tag: tag, Ciphertext: ct}, nil
}

// Sealed is an encrypted record as persisted next to its wrapped content key.
type Sealed struct {
	Ciphertext string // Envelope.String()
	WrappedKey string // base64 RSA-OAEP output
}

// IsZero reports whether nothing has been sealed yet.
func (s Sealed) IsZero() bool {
	return s.Ciphertext == "" && s.WrappedKey == ""
}
