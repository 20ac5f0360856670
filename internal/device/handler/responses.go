package handler

import (
	"time"

	"instahelp/internal/device/models"
)

// RegistrationResponse never echoes the secret or its hash.
type RegistrationResponse struct {
	DeviceID     string     `json:"device_id"`
	PatientID    string     `json:"patient_id"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
}

// IngestResponse acknowledges a stored reading.
type IngestResponse struct {
	Success  bool   `json:"success"`
	VitalsID string `json:"vitals_id"`
}

type VitalsListResponse struct {
	Vitals []*models.Vitals `json:"vitals"`
	Count  int              `json:"count"`
}

func toRegistrationResponse(reg *models.Registration) *RegistrationResponse {
	return &RegistrationResponse{
		DeviceID:     reg.DeviceID.String(),
		PatientID:    reg.PatientID.String(),
		RegisteredAt: reg.RegisteredAt,
		LastSeenAt:   reg.LastSeenAt,
	}
}
