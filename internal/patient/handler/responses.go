package handler

import (
	"time"

	tokenmodels "instahelp/internal/captoken/models"
	"instahelp/internal/patient/models"
)

// ProfileResponse is the owner's view of their own record.
type ProfileResponse struct {
	PatientID      string                 `json:"patient_id"`
	Version        int                    `json:"version"`
	PublicView     models.PublicView      `json:"public_view"`
	PrivateProfile *models.PrivateProfile `json:"private_profile,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// InitializeResponse adds the first capability token.
type InitializeResponse struct {
	ProfileResponse
	Token        string `json:"token,omitempty"`
	EmergencyURL string `json:"emergency_url,omitempty"`
}

func toProfileResponse(p *models.Patient, private *models.PrivateProfile) ProfileResponse {
	view := p.EmergencyView()
	return ProfileResponse{
		PatientID:      p.ID.String(),
		Version:        p.Version,
		PublicView:     view,
		PrivateProfile: private,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func toInitializeResponse(p *models.Patient, private *models.PrivateProfile, tok *tokenmodels.Token, url string) *InitializeResponse {
	resp := &InitializeResponse{ProfileResponse: toProfileResponse(p, private)}
	if tok != nil {
		resp.Token = tok.Token
		resp.EmergencyURL = url
	}
	return resp
}
