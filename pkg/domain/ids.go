package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "instahelp/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so the compiler rejects passing a
// PatientID where a ChangeID is expected.
type (
	UserID    uuid.UUID
	PatientID uuid.UUID
	ChangeID  uuid.UUID
	TokenID   uuid.UUID
	VitalsID  uuid.UUID
)

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id PatientID) String() string { return uuid.UUID(id).String() }
func (id ChangeID) String() string  { return uuid.UUID(id).String() }
func (id TokenID) String() string   { return uuid.UUID(id).String() }
func (id VitalsID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PatientID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ChangeID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id TokenID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id VitalsID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// Text encoding keeps IDs as canonical UUID strings in JSON documents.
func (id UserID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id PatientID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ChangeID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id TokenID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id VitalsID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PatientID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ChangeID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TokenID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *VitalsID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }

func NewUserID() UserID       { return UserID(uuid.New()) }
func NewPatientID() PatientID { return PatientID(uuid.New()) }
func NewChangeID() ChangeID   { return ChangeID(uuid.New()) }
func NewTokenID() TokenID     { return TokenID(uuid.New()) }
func NewVitalsID() VitalsID   { return VitalsID(uuid.New()) }

// parseUUID enforces the shared trust-boundary rules: non-empty, well-formed,
// not the nil UUID.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

func ParsePatientID(s string) (PatientID, error) {
	u, err := parseUUID(s, "patient ID")
	return PatientID(u), err
}

func ParseChangeID(s string) (ChangeID, error) {
	u, err := parseUUID(s, "change ID")
	return ChangeID(u), err
}

func ParseTokenID(s string) (TokenID, error) {
	u, err := parseUUID(s, "token ID")
	return TokenID(u), err
}

func ParseVitalsID(s string) (VitalsID, error) {
	u, err := parseUUID(s, "vitals ID")
	return VitalsID(u), err
}

// DeviceID is the identifier a device reports for itself. It is opaque
// and not a UUID.
type DeviceID string

const maxDeviceIDLength = 128

// ParseDeviceID accepts 1..128 printable ASCII characters.
func ParseDeviceID(s string) (DeviceID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "device ID cannot be empty")
	}
	if len(s) > maxDeviceIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "device ID too long")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return "", dErrors.New(dErrors.CodeInvalidInput, "device ID contains invalid characters")
		}
	}
	return DeviceID(s), nil
}

func (d DeviceID) String() string { return string(d) }
