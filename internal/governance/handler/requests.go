package handler

import (
	"bytes"
	"encoding/json"
	"strings"

	patientmodels "instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
)

const maxCommentLength = 1000

// CreateChangeRequest is the body for POST /api/pending-changes.
type CreateChangeRequest struct {
	PatientID  string          `json:"patient_id"`
	ChangeType string          `json:"change_type"`
	FieldPath  string          `json:"field_path"`
	NewValue   json.RawMessage `json:"new_value"`

	parsedPatientID id.PatientID
	parsedPath      patientmodels.FieldPath
}

func (r *CreateChangeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	patientID, err := id.ParsePatientID(strings.TrimSpace(r.PatientID))
	if err != nil {
		return err
	}
	r.parsedPatientID = patientID

	if strings.TrimSpace(r.FieldPath) == "" {
		return dErrors.New(dErrors.CodeValidation, "field_path is required")
	}
	path, err := patientmodels.ParseFieldPath(r.FieldPath, strings.TrimSpace(r.ChangeType))
	if err != nil {
		return err
	}
	r.parsedPath = path

	if len(bytes.TrimSpace(r.NewValue)) == 0 {
		return dErrors.New(dErrors.CodeValidation, "new_value is required")
	}
	return nil
}

// VoteRequest is the optional body for approve and reject. Approvals carry
// a comment, rejections a reason; either key is accepted for both.
type VoteRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

func (r *VoteRequest) Validate() error {
	if len(r.Comment) > maxCommentLength || len(r.Reason) > maxCommentLength {
		return dErrors.New(dErrors.CodeValidation, "comment is too long")
	}
	return nil
}

// Text returns whichever of comment or reason was supplied.
func (r *VoteRequest) Text() string {
	if r.Comment != "" {
		return strings.TrimSpace(r.Comment)
	}
	return strings.TrimSpace(r.Reason)
}
