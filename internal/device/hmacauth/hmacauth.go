// Package hmacauth signs and verifies device telemetry with HMAC-SHA-256,
// and derives the per-device verification keys.
package hmacauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	"instahelp/internal/device/models"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
)

// DeviceKeySize is the length of a derived per-device key.
const DeviceKeySize = 32

const deviceKeyInfo = "instahelp device telemetry v1|"

func mac(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// Sign returns the hex HMAC of the payload's canonical form.
func Sign(p models.Payload, key []byte) (string, error) {
	canonical, err := p.Canonicalize()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(mac(key, canonical)), nil
}

// Verify recomputes the HMAC over the canonical form and compares it to the
// payload's signature in constant time. Malformed signatures fail.
func Verify(p models.Payload, key []byte) bool {
	if len(key) == 0 {
		return false
	}
	supplied, err := hex.DecodeString(p.Signature())
	if err != nil || len(supplied) != sha256.Size {
		return false
	}
	canonical, err := p.Canonicalize()
	if err != nil {
		return false
	}
	return hmac.Equal(mac(key, canonical), supplied)
}

// HashSecret is the stored form of a device's provisioned secret.
func HashSecret(fleetSecret []byte, deviceSecret string) string {
	return hex.EncodeToString(mac(fleetSecret, []byte(deviceSecret)))
}

// DeriveDeviceKey expands a registration's secret hash into the key that
// device signs with. The device ID is bound into the derivation, so a key
// is useless for any other device.
func DeriveDeviceKey(secretHash string, deviceID id.DeviceID) ([]byte, error) {
	ikm, err := hex.DecodeString(secretHash)
	if err != nil || len(ikm) == 0 {
		return nil, dErrors.New(dErrors.CodeIntegrity, "stored device secret hash is malformed")
	}
	r := hkdf.New(sha256.New, ikm, nil, []byte(deviceKeyInfo+string(deviceID)))
	key := make([]byte, DeviceKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive device key")
	}
	return key, nil
}

// ProvisionDeviceKey is what provisioning tools run: it yields the same key
// the server derives from the registration, without storing the secret.
func ProvisionDeviceKey(fleetSecret []byte, deviceSecret string, deviceID id.DeviceID) ([]byte, error) {
	return DeriveDeviceKey(HashSecret(fleetSecret, deviceSecret), deviceID)
}
