package models

import (
	"strings"

	dErrors "instahelp/pkg/domain-errors"
)

var validBloodTypes = map[string]bool{"A": true, "B": true, "AB": true, "O": true}

var validSeverities = map[string]bool{"mild": true, "moderate": true, "severe": true, "critical": true}

var validConditionStatuses = map[string]bool{"active": true, "controlled": true, "resolved": true}

const maxInstructionsLength = 500

// Allergy is one known allergen with the reaction it causes.
type Allergy struct {
	Allergen string `json:"allergen"`
	Severity string `json:"severity"`
	Reaction string `json:"reaction"`
}

// EmergencyContact is who rescuers should call.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// VitalRanges are the owner's normal ranges, shown next to live readings.
type VitalRanges struct {
	HeartRateMin           float64 `json:"heart_rate_min"`
	HeartRateMax           float64 `json:"heart_rate_max"`
	TemperatureMin         float64 `json:"temperature_min"`
	TemperatureMax         float64 `json:"temperature_max"`
	BloodPressureSystolic  float64 `json:"blood_pressure_systolic"`
	BloodPressureDiastolic float64 `json:"blood_pressure_diastolic"`
}

// LastVitals is the most recent device reading.
type LastVitals struct {
	Timestamp              string   `json:"timestamp"`
	HeartRate              *float64 `json:"heart_rate,omitempty"`
	Temperature            *float64 `json:"temperature,omitempty"`
	BloodPressureSystolic  *float64 `json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *float64 `json:"blood_pressure_diastolic,omitempty"`
	OxygenSaturation       *float64 `json:"oxygen_saturation,omitempty"`
	RespiratoryRate        *float64 `json:"respiratory_rate,omitempty"`
}

// PublicView is stored unencrypted and readable by anyone holding the
// patient's capability token.
type PublicView struct {
	BloodType         string           `json:"blood_type"`
	RhFactor          string           `json:"rh_factor"`
	Allergies         []Allergy        `json:"allergies"`
	EmergencyContact  EmergencyContact `json:"emergency_contact"`
	ShortInstructions string           `json:"short_instructions"`
	VitalRanges       *VitalRanges     `json:"vital_ranges,omitempty"`
	LastVitals        *LastVitals      `json:"last_vitals,omitempty"`
}

// Medication is one current prescription.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Reason    string `json:"reason,omitempty"`
	StartDate string `json:"start_date,omitempty"`
}

// ChronicCondition is a long-term diagnosis.
type ChronicCondition struct {
	Condition     string `json:"condition"`
	DiagnosedDate string `json:"diagnosed_date"`
	Status        string `json:"status"`
	Treatment     string `json:"treatment,omitempty"`
}

// PrivateProfile is encrypted at rest and shown only to the owner and
// verified clinicians.
type PrivateProfile struct {
	NationalID         string             `json:"national_id"`
	FullName           string             `json:"full_name"`
	DateOfBirth        string             `json:"date_of_birth"`
	Medications        []Medication       `json:"medications"`
	ChronicConditions  []ChronicCondition `json:"chronic_conditions"`
	DoctorNotes        string             `json:"doctor_notes"`
	FullMedicalHistory string             `json:"full_medical_history"`
}

func validateBloodType(s string) error {
	if !validBloodTypes[s] {
		return dErrors.New(dErrors.CodeValidation, "blood_type must be one of A, B, AB, O")
	}
	return nil
}

func validateRhFactor(s string) error {
	if s != "+" && s != "-" {
		return dErrors.New(dErrors.CodeValidation, "rh_factor must be + or -")
	}
	return nil
}

func validateAllergies(list []Allergy) error {
	for _, a := range list {
		if strings.TrimSpace(a.Allergen) == "" {
			return dErrors.New(dErrors.CodeValidation, "allergy allergen is required")
		}
		if !validSeverities[a.Severity] {
			return dErrors.New(dErrors.CodeValidation, "allergy severity must be mild, moderate, severe or critical")
		}
	}
	return nil
}

func validateEmergencyContact(c EmergencyContact) error {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Phone) == "" {
		return dErrors.New(dErrors.CodeValidation, "emergency_contact name and phone are required")
	}
	return nil
}

func validateInstructions(s string) error {
	if strings.TrimSpace(s) == "" {
		return dErrors.New(dErrors.CodeValidation, "short_instructions is required")
	}
	if len(s) > maxInstructionsLength {
		return dErrors.New(dErrors.CodeValidation, "short_instructions is too long")
	}
	return nil
}

func validateVitalRanges(r *VitalRanges) error {
	if r == nil {
		return nil
	}
	if r.HeartRateMin > r.HeartRateMax || r.TemperatureMin > r.TemperatureMax {
		return dErrors.New(dErrors.CodeValidation, "vital_ranges minimum exceeds maximum")
	}
	return nil
}

func validateMedications(list []Medication) error {
	for _, m := range list {
		if strings.TrimSpace(m.Name) == "" {
			return dErrors.New(dErrors.CodeValidation, "medication name is required")
		}
	}
	return nil
}

func validateConditions(list []ChronicCondition) error {
	for _, c := range list {
		if strings.TrimSpace(c.Condition) == "" {
			return dErrors.New(dErrors.CodeValidation, "chronic condition name is required")
		}
		if !validConditionStatuses[c.Status] {
			return dErrors.New(dErrors.CodeValidation, "chronic condition status must be active, controlled or resolved")
		}
	}
	return nil
}

// Validate checks the fields required for a usable emergency view.
func (v *PublicView) Validate() error {
	if err := validateBloodType(v.BloodType); err != nil {
		return err
	}
	if v.RhFactor != "" {
		if err := validateRhFactor(v.RhFactor); err != nil {
			return err
		}
	}
	if err := validateAllergies(v.Allergies); err != nil {
		return err
	}
	if err := validateEmergencyContact(v.EmergencyContact); err != nil {
		return err
	}
	if err := validateInstructions(v.ShortInstructions); err != nil {
		return err
	}
	return validateVitalRanges(v.VitalRanges)
}

// Validate checks list entries; every scalar field is optional.
func (p *PrivateProfile) Validate() error {
	if err := validateMedications(p.Medications); err != nil {
		return err
	}
	return validateConditions(p.ChronicConditions)
}
