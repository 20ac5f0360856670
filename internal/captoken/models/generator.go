package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	tokenEntropy  = 16 // bytes

	MinTokenLength = 20
	MaxTokenLength = 30
)

// GenerateToken draws 128 random bits and renders them in base62. The value
// is treated as a big-endian integer, so leading zero digits vanish and the
// length varies (at most 22 symbols; shorter with small probability). Callers
// validate format, not exact length.
func GenerateToken() (string, error) {
	for {
		buf := make([]byte, tokenEntropy)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		s := encodeBase62(new(big.Int).SetBytes(buf))
		// Values below 62^19 would render shorter than the accepted format.
		if len(s) >= MinTokenLength {
			return s, nil
		}
	}
}

func encodeBase62(n *big.Int) string {
	if n.Sign() == 0 {
		return string(tokenAlphabet[0])
	}
	base := big.NewInt(int64(len(tokenAlphabet)))
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, tokenAlphabet[mod.Int64()])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// IsValidTokenFormat accepts only ASCII alphanumeric strings of 20 to 30 characters.
func IsValidTokenFormat(s string) bool {
	if len(s) < MinTokenLength || len(s) > MaxTokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		isDigit := c >= '0' && c <= '9'
		isUpper := c >= 'A' && c <= 'Z'
		isLower := c >= 'a' && c <= 'z'
		if !isDigit && !isUpper && !isLower {
			return false
		}
	}
	return true
}
