package domain

import dErrors "instahelp/pkg/domain-errors"

// Role is the account role a caller acts under.
// Invariant: the value must be one of the supported roles.
//
// Usage: construct via ParseRole at trust boundaries (JWT claims, request
// bodies); direct casting bypasses validation.
type Role string

const (
	// RoleOwner is the account holder who owns a patient record.
	RoleOwner Role = "owner"
	// RoleClinician is a medical professional account.
	RoleClinician Role = "clinician"
)

var validRoles = map[Role]bool{
	RoleOwner:     true,
	RoleClinician: true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}

// Actor identifies the authenticated caller of a service operation.
type Actor struct {
	UserID UserID
	Role   Role
}

func (a Actor) IsOwner() bool     { return a.Role == RoleOwner }
func (a Actor) IsClinician() bool { return a.Role == RoleClinician }
