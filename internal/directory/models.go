// Package directory is a read-only view over accounts managed by the account
// service: who is a verified clinician and where to reach a user.
package directory

import (
	id "instahelp/pkg/domain"
)

// Account is the subset of an account record the platform consults.
type Account struct {
	ID                id.UserID
	Email             string
	Role              id.Role
	EmailVerified     bool
	ClinicianVerified bool
	LicenseNumber     string
}

// IsVerifiedClinician reports whether the account may vote as a clinician.
// Both the email and the professional credential must have been verified.
func (a *Account) IsVerifiedClinician() bool {
	return a.Role == id.RoleClinician && a.EmailVerified && a.ClinicianVerified
}
