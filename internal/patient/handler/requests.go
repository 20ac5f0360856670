package handler

import (
	"instahelp/internal/patient/models"
	dErrors "instahelp/pkg/domain-errors"
)

// InitializeRequest is the body for POST /api/patients/me/initialize.
type InitializeRequest struct {
	models.PublicView
	PrivateProfile models.PrivateProfile `json:"private_profile"`
}

// Validate checks the public fields rescuers depend on; the service repeats
// the full document validation.
func (r *InitializeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.BloodType == "" {
		return dErrors.New(dErrors.CodeValidation, "blood_type is required")
	}
	if r.EmergencyContact.Name == "" || r.EmergencyContact.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "emergency_contact name and phone are required")
	}
	if r.ShortInstructions == "" {
		return dErrors.New(dErrors.CodeValidation, "short_instructions is required")
	}
	return nil
}
