package models

import (
	"time"

	id "instahelp/pkg/domain"
)

// Token is a bearer capability granting read access to one patient's public
// emergency view. Rotation never edits a token: it revokes the old row and
// inserts a new one, so history stays queryable.
type Token struct {
	ID             id.TokenID
	PatientID      id.PatientID
	Token          string
	Version        int
	CreatedAt      time.Time
	RevokedAt      *time.Time
	LastAccessedAt *time.Time
	ExpiresAt      *time.Time
}

// IsRevoked reports whether the token has been revoked.
func (t *Token) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired reports whether an expiry is set and has passed at now.
func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// IsUsable is true for a token that is neither revoked nor expired.
// Revocation always wins: a revoked token is unusable regardless of expiry.
func (t *Token) IsUsable(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// EmergencyURL composes the public link printed on the patient's card.
func EmergencyURL(frontendURL, token string) string {
	for len(frontendURL) > 0 && frontendURL[len(frontendURL)-1] == '/' {
		frontendURL = frontendURL[:len(frontendURL)-1]
	}
	return frontendURL + "/r/" + token
}
