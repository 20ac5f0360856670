package handler

import (
	"encoding/json"
	"time"

	"instahelp/internal/governance/models"
)

// ChangeResponse is a pending change with its approval progress.
type ChangeResponse struct {
	ID            string                  `json:"id"`
	PatientID     string                  `json:"patient_id"`
	InitiatedBy   string                  `json:"initiated_by"`
	InitiatedRole string                  `json:"initiated_role"`
	ChangeType    string                  `json:"change_type"`
	FieldPath     string                  `json:"field_path"`
	OldValue      json.RawMessage         `json:"old_value,omitempty"`
	NewValue      json.RawMessage         `json:"new_value,omitempty"`
	Status        string                  `json:"status"`
	Approvals     []models.Vote           `json:"approvals"`
	Rejections    []models.Vote           `json:"rejections"`
	Progress      models.ApprovalProgress `json:"approval_progress"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	FinalizedAt   *time.Time              `json:"finalized_at,omitempty"`
}

// ChangeListResponse wraps a list of changes.
type ChangeListResponse struct {
	Changes []*ChangeResponse `json:"changes"`
	Count   int               `json:"count"`
}

func toChangeResponse(c *models.PendingChange) *ChangeResponse {
	approvals := c.Approvals
	if approvals == nil {
		approvals = []models.Vote{}
	}
	rejections := c.Rejections
	if rejections == nil {
		rejections = []models.Vote{}
	}
	return &ChangeResponse{
		ID:            c.ID.String(),
		PatientID:     c.PatientID.String(),
		InitiatedBy:   c.InitiatedBy.String(),
		InitiatedRole: string(c.InitiatedRole),
		ChangeType:    string(c.FieldPath.Target),
		FieldPath:     string(c.FieldPath.Field),
		OldValue:      c.OldValue,
		NewValue:      c.NewValue,
		Status:        string(c.Status),
		Approvals:     approvals,
		Rejections:    rejections,
		Progress:      c.Progress(),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		FinalizedAt:   c.FinalizedAt,
	}
}

func toChangeList(changes []*models.PendingChange) *ChangeListResponse {
	out := make([]*ChangeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, toChangeResponse(c))
	}
	return &ChangeListResponse{Changes: out, Count: len(out)}
}
