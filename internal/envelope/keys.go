package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	dErrors "instahelp/pkg/domain-errors"
)

// MinMasterKeyBits is the smallest RSA modulus accepted for the master key.
const MinMasterKeyBits = 2048

// GenerateMasterKey creates a new RSA master key pair.
func GenerateMasterKey(bits int) (*rsa.PrivateKey, error) {
	if bits < MinMasterKeyBits {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("master key must be at least %d bits", MinMasterKeyBits))
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return key, nil
}

// MarshalPrivateKeyPEM encodes key as a PKCS#8 PEM block.
func MarshalPrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalPublicKeyPEM encodes key as a PKIX PEM block.
func MarshalPublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM accepts PKCS#1 ("RSA PRIVATE KEY") or PKCS#8 ("PRIVATE KEY").
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "no PEM block in private key")
	}
	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs1 private key: %w", err)
		}
		key = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 private key: %w", err)
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "private key is not RSA")
		}
		key = rk
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported private key PEM type "+block.Type)
	}
	if key.N.BitLen() < MinMasterKeyBits {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "master key too small")
	}
	return key, nil
}

// ParsePublicKeyPEM accepts PKIX ("PUBLIC KEY") or PKCS#1 ("RSA PUBLIC KEY").
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "no PEM block in public key")
	}
	var key *rsa.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkix public key: %w", err)
		}
		rk, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "public key is not RSA")
		}
		key = rk
	case "RSA PUBLIC KEY":
		k, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs1 public key: %w", err)
		}
		key = k
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported public key PEM type "+block.Type)
	}
	if key.N.BitLen() < MinMasterKeyBits {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "master key too small")
	}
	return key, nil
}

// LoadFromFiles builds a Cipher from PEM files. Empty paths are skipped; the
// resulting Cipher reports CodeKeyUnavailable for operations needing the
// missing half. When both are given the public key must match the private key.
func LoadFromFiles(privatePath, publicPath string) (*Cipher, error) {
	var opts []Option
	var priv *rsa.PrivateKey
	if privatePath != "" {
		data, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, fmt.Errorf("read master private key: %w", err)
		}
		priv, err = ParsePrivateKeyPEM(data)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithPrivateKey(priv))
	}
	if publicPath != "" {
		data, err := os.ReadFile(publicPath)
		if err != nil {
			return nil, fmt.Errorf("read master public key: %w", err)
		}
		pub, err := ParsePublicKeyPEM(data)
		if err != nil {
			return nil, err
		}
		if priv != nil && !priv.PublicKey.Equal(pub) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "master public key does not match private key")
		}
		opts = append(opts, WithPublicKey(pub))
	}
	return New(opts...), nil
}
