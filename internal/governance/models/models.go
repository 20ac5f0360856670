// Package models holds the pending change aggregate and the quorum rules
// that decide when a change may be applied.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	patientmodels "instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusFinalized Status = "finalized"
)

// IsTerminal reports whether the status admits no further votes.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusFinalized
}

// IsOpen reports whether the change still awaits votes or finalization.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusApproved
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFinalized:
		return true
	}
	return false
}

// Vote is one approval or rejection.
type Vote struct {
	VoterID   id.UserID `json:"voter_id"`
	VoterRole id.Role   `json:"voter_role"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment,omitempty"`
}

// Quorum is the number of approvals required from each role.
type Quorum struct {
	Holder    int
	Clinician int
}

// RequiredQuorum is the rule table. Owner-initiated changes need two
// clinicians; clinician-initiated changes need the owner plus one clinician.
func RequiredQuorum(initiator id.Role) Quorum {
	if initiator == id.RoleClinician {
		return Quorum{Holder: 1, Clinician: 1}
	}
	return Quorum{Holder: 0, Clinician: 2}
}

// PendingChange is a proposed mutation to one field of a patient record.
//
// Invariants:
//   - Status starts pending and moves only pending -> approved -> finalized
//     or pending|approved -> rejected. Rejected and finalized are terminal;
//     a terminal change is never modified again.
//   - A voter appears at most once across Approvals and Rejections.
//   - Version increases by one on every persisted update.
type PendingChange struct {
	ID            id.ChangeID
	PatientID     id.PatientID
	InitiatedBy   id.UserID
	InitiatedRole id.Role
	FieldPath     patientmodels.FieldPath
	OldValue      json.RawMessage
	NewValue      json.RawMessage
	Status        Status
	Approvals     []Vote
	Rejections    []Vote
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinalizedAt   *time.Time
}

func (c *PendingChange) Quorum() Quorum {
	return RequiredQuorum(c.InitiatedRole)
}

// HasVoted reports whether userID already approved or rejected.
func (c *PendingChange) HasVoted(userID id.UserID) bool {
	for _, v := range c.Approvals {
		if v.VoterID == userID {
			return true
		}
	}
	for _, v := range c.Rejections {
		if v.VoterID == userID {
			return true
		}
	}
	return false
}

// Tally counts approvals per role.
func (c *PendingChange) Tally() (holder, clinician int) {
	for _, v := range c.Approvals {
		switch v.VoterRole {
		case id.RoleOwner:
			holder++
		case id.RoleClinician:
			clinician++
		}
	}
	return holder, clinician
}

// QuorumMet reports whether the approvals satisfy the rule table.
func (c *PendingChange) QuorumMet() bool {
	q := c.Quorum()
	holder, clinician := c.Tally()
	return holder >= q.Holder && clinician >= q.Clinician
}

// NeedsVoteFrom reports whether the rule table still wants approvals from role.
func (c *PendingChange) NeedsVoteFrom(role id.Role) bool {
	q := c.Quorum()
	holder, clinician := c.Tally()
	switch role {
	case id.RoleOwner:
		return holder < q.Holder
	case id.RoleClinician:
		return clinician < q.Clinician
	}
	return false
}

// RequiresRole reports whether the rule table involves role at all.
func (c *PendingChange) RequiresRole(role id.Role) bool {
	q := c.Quorum()
	switch role {
	case id.RoleOwner:
		return q.Holder > 0
	case id.RoleClinician:
		return q.Clinician > 0
	}
	return false
}

// Approve records an approval and moves the change to approved once the
// quorum is met. Finalization is a separate step.
func (c *PendingChange) Approve(v Vote) error {
	if c.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeTerminalState, fmt.Sprintf("change is already %s", c.Status))
	}
	if c.HasVoted(v.VoterID) {
		return dErrors.New(dErrors.CodeDuplicateVote, "voter has already voted on this change")
	}
	c.Approvals = append(c.Approvals, v)
	c.UpdatedAt = v.Timestamp
	if c.QuorumMet() {
		c.Status = StatusApproved
	}
	return nil
}

// Reject records a rejection. A single rejection vetoes the change, even
// one that has reached quorum but is not yet finalized.
func (c *PendingChange) Reject(v Vote) error {
	if c.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeTerminalState, fmt.Sprintf("change is already %s", c.Status))
	}
	if c.HasVoted(v.VoterID) {
		return dErrors.New(dErrors.CodeDuplicateVote, "voter has already voted on this change")
	}
	c.Rejections = append(c.Rejections, v)
	c.UpdatedAt = v.Timestamp
	c.Status = StatusRejected
	return nil
}

// MarkFinalized records that the change was applied.
func (c *PendingChange) MarkFinalized(at time.Time) error {
	if c.Status != StatusApproved {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("cannot finalize a %s change", c.Status))
	}
	c.Status = StatusFinalized
	c.FinalizedAt = &at
	c.UpdatedAt = at
	return nil
}

// ApprovalProgress summarizes where a change stands against its quorum.
type ApprovalProgress struct {
	RequiredHolder     int    `json:"required_holder_approvals"`
	RequiredClinician  int    `json:"required_clinician_approvals"`
	HolderApprovals    int    `json:"holder_approvals"`
	ClinicianApprovals int    `json:"clinician_approvals"`
	Summary            string `json:"summary"`
}

func (c *PendingChange) Progress() ApprovalProgress {
	q := c.Quorum()
	holder, clinician := c.Tally()
	p := ApprovalProgress{
		RequiredHolder:     q.Holder,
		RequiredClinician:  q.Clinician,
		HolderApprovals:    holder,
		ClinicianApprovals: clinician,
	}
	switch c.Status {
	case StatusFinalized:
		p.Summary = "Applied"
	case StatusRejected:
		p.Summary = "Rejected"
	case StatusApproved:
		p.Summary = "Approved, applying"
	default:
		p.Summary = waitingSummary(q, holder, clinician)
	}
	return p
}

func waitingSummary(q Quorum, holder, clinician int) string {
	var parts []string
	if missing := q.Holder - holder; missing > 0 {
		parts = append(parts, "owner approval")
	}
	if missing := q.Clinician - clinician; missing > 0 {
		noun := "clinician approval"
		if missing > 1 {
			noun = "clinician approvals"
		}
		parts = append(parts, fmt.Sprintf("%d %s", missing, noun))
	}
	switch len(parts) {
	case 0:
		return "Ready to apply"
	case 1:
		return "Waiting for " + parts[0]
	}
	return "Waiting for " + parts[0] + " and " + parts[1]
}
