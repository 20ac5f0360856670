package models

import (
	"encoding/json"
	"strconv"
	"time"

	patientmodels "instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
)

// Registration binds a device to a patient. SecretHash is a keyed hash of
// the provisioned secret; the raw secret is never stored.
type Registration struct {
	DeviceID     id.DeviceID
	PatientID    id.PatientID
	SecretHash   string
	RegisteredAt time.Time
	LastSeenAt   *time.Time
}

// Vitals is one stored telemetry reading.
type Vitals struct {
	ID             id.VitalsID    `json:"id"`
	PatientID      id.PatientID   `json:"patient_id"`
	DeviceID       id.DeviceID    `json:"device_id"`
	Timestamp      string         `json:"timestamp"`
	HeartRate      *float64       `json:"heart_rate,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	AdditionalData map[string]any `json:"additional_data"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Wire names of the measurement fields devices send.
const (
	fieldDeviceID    = "device_id"
	fieldTimestamp   = "timestamp"
	fieldHeartRate   = "hr"
	fieldTemperature = "temp"
	fieldSpO2        = "spo2"
	fieldRespRate    = "rr"
	fieldBPSystolic  = "bp_sys"
	fieldBPDiastolic = "bp_dia"
)

var coreFields = map[string]bool{
	fieldDeviceID:    true,
	fieldTimestamp:   true,
	fieldHeartRate:   true,
	fieldTemperature: true,
	SignatureField:   true,
}

// Reading is the validated content of a telemetry payload.
type Reading struct {
	DeviceID       id.DeviceID
	Timestamp      string
	HeartRate      *float64
	Temperature    *float64
	AdditionalData map[string]any
}

// ReadingFromPayload extracts the fields the platform understands. Fields
// it does not know are kept verbatim in AdditionalData.
func ReadingFromPayload(p Payload) (*Reading, error) {
	deviceID, err := id.ParseDeviceID(p.String(fieldDeviceID))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "payload device_id is required")
	}
	ts := p.String(fieldTimestamp)
	if ts == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "payload timestamp is required")
	}
	r := &Reading{DeviceID: deviceID, Timestamp: ts, AdditionalData: map[string]any{}}
	if r.HeartRate, err = number(p, fieldHeartRate); err != nil {
		return nil, err
	}
	if r.Temperature, err = number(p, fieldTemperature); err != nil {
		return nil, err
	}
	for k, v := range p {
		if !coreFields[k] {
			r.AdditionalData[k] = v
		}
	}
	return r, nil
}

// LastVitals projects the reading onto the public view's last_vitals.
func (r *Reading) LastVitals() patientmodels.LastVitals {
	extra := Payload(r.AdditionalData)
	lv := patientmodels.LastVitals{
		Timestamp:   r.Timestamp,
		HeartRate:   r.HeartRate,
		Temperature: r.Temperature,
	}
	lv.OxygenSaturation, _ = number(extra, fieldSpO2)
	lv.RespiratoryRate, _ = number(extra, fieldRespRate)
	lv.BloodPressureSystolic, _ = number(extra, fieldBPSystolic)
	lv.BloodPressureDiastolic, _ = number(extra, fieldBPDiastolic)
	return lv
}

func number(p Payload, key string) (*float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case float64:
		f = n
	case string:
		f, err = strconv.ParseFloat(n, 64)
	default:
		err = strconv.ErrSyntax
	}
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "payload field "+key+" must be numeric")
	}
	return &f, nil
}
