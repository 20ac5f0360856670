package models

import (
	"time"

	"instahelp/internal/envelope"
	id "instahelp/pkg/domain"
)

// Patient is the aggregate root for one person's emergency record.
//
// Invariants:
//   - OwnerID is fixed at creation; one record per owner
//   - Private is always a complete sealed PrivateProfile, never partial
//   - Version increases by one on every governed write (public view or
//     private profile); device vitals do not bump it
//   - PublicView.LastVitals is device-owned and never written through
//     governance
type Patient struct {
	ID         id.PatientID
	OwnerID    id.UserID
	PublicView PublicView
	Private    envelope.Sealed
	LastVitals *LastVitals
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsOwnedBy reports whether userID is the account holder for this record.
func (p *Patient) IsOwnedBy(userID id.UserID) bool {
	return !userID.IsNil() && p.OwnerID == userID
}

// EmergencyView is the public view as rescuers see it, with the latest
// device reading folded in.
func (p *Patient) EmergencyView() PublicView {
	view := p.PublicView
	if p.LastVitals != nil {
		lv := *p.LastVitals
		view.LastVitals = &lv
	}
	return view
}
