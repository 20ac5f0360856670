package handler

import (
	"strings"

	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
)

// RegisterRequest is the body for POST /api/devices.
type RegisterRequest struct {
	DeviceID  string `json:"device_id"`
	PatientID string `json:"patient_id"`
	Secret    string `json:"secret"`

	parsedDeviceID  id.DeviceID
	parsedPatientID id.PatientID
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	deviceID, err := id.ParseDeviceID(strings.TrimSpace(r.DeviceID))
	if err != nil {
		return err
	}
	r.parsedDeviceID = deviceID

	patientID, err := id.ParsePatientID(strings.TrimSpace(r.PatientID))
	if err != nil {
		return err
	}
	r.parsedPatientID = patientID

	if r.Secret == "" {
		return dErrors.New(dErrors.CodeValidation, "secret is required")
	}
	return nil
}
