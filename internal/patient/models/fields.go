package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	dErrors "instahelp/pkg/domain-errors"
)

// Target names the document a governed change writes to.
type Target string

const (
	TargetPublicView     Target = "public_view"
	TargetPrivateProfile Target = "private_profile"
)

// ParseTarget accepts the wire values public_view and private_profile.
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case TargetPublicView, TargetPrivateProfile:
		return Target(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "change_type must be public_view or private_profile")
}

// Field is one addressable location inside a target document.
type Field string

// FieldPath is a closed, typed mutation target. Only paths registered in
// the tables below exist; there is no free-form traversal.
type FieldPath struct {
	Target Target
	Field  Field
}

func (p FieldPath) String() string {
	return string(p.Target) + "." + string(p.Field)
}

// IsPrivate reports whether the path lives in the encrypted profile.
func (p FieldPath) IsPrivate() bool {
	return p.Target == TargetPrivateProfile
}

// MarshalText and UnmarshalText use the "<target>.<field>" wire form.
func (p FieldPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *FieldPath) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldPath(string(b), "")
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseFieldPath resolves "public_view.blood_type" style paths. The target
// prefix may be omitted when changeType names it; when both are given they
// must agree.
func ParseFieldPath(path, changeType string) (FieldPath, error) {
	path = strings.TrimSpace(path)
	var target Target
	if changeType != "" {
		t, err := ParseTarget(changeType)
		if err != nil {
			return FieldPath{}, err
		}
		target = t
	}

	field := path
	for _, t := range []Target{TargetPublicView, TargetPrivateProfile} {
		if rest, ok := strings.CutPrefix(path, string(t)+"."); ok {
			if target != "" && target != t {
				return FieldPath{}, dErrors.New(dErrors.CodeValidation, "field_path does not match change_type")
			}
			target = t
			field = rest
			break
		}
	}
	if target == "" {
		return FieldPath{}, dErrors.New(dErrors.CodeValidation, "field_path must name public_view or private_profile")
	}

	fp := FieldPath{Target: target, Field: Field(field)}
	if !fp.known() {
		return FieldPath{}, dErrors.New(dErrors.CodeValidation, "unknown field_path "+fp.String())
	}
	return fp, nil
}

func (p FieldPath) known() bool {
	switch p.Target {
	case TargetPublicView:
		_, ok := publicFields[p.Field]
		return ok
	case TargetPrivateProfile:
		_, ok := privateFields[p.Field]
		return ok
	}
	return false
}

// Fields lists every governed path in wire form, sorted.
func Fields() []string {
	out := make([]string, 0, len(publicFields)+len(privateFields))
	for f := range publicFields {
		out = append(out, FieldPath{TargetPublicView, f}.String())
	}
	for f := range privateFields {
		out = append(out, FieldPath{TargetPrivateProfile, f}.String())
	}
	sort.Strings(out)
	return out
}

// Documents carries the two documents of a record; a path reads or writes
// exactly one of them.
type Documents struct {
	Public  *PublicView
	Private *PrivateProfile
}

// Get returns the current JSON value at the path. It never mutates docs.
func (p FieldPath) Get(docs Documents) (json.RawMessage, error) {
	switch p.Target {
	case TargetPublicView:
		if docs.Public == nil {
			return nil, dErrors.New(dErrors.CodeInternal, "public view not loaded")
		}
		cp := *docs.Public
		return publicFields[p.Field].get(&cp)
	case TargetPrivateProfile:
		if docs.Private == nil {
			return nil, dErrors.New(dErrors.CodeInternal, "private profile not loaded")
		}
		cp := *docs.Private
		return privateFields[p.Field].get(&cp)
	}
	return nil, dErrors.New(dErrors.CodeValidation, "unknown field_path "+p.String())
}

// Apply decodes raw strictly into the path's type, writes it, and validates
// the resulting document. On error the document is left unchanged.
func (p FieldPath) Apply(docs Documents, raw json.RawMessage) error {
	switch p.Target {
	case TargetPublicView:
		if docs.Public == nil {
			return dErrors.New(dErrors.CodeInternal, "public view not loaded")
		}
		next := *docs.Public
		if err := publicFields[p.Field].set(&next, raw); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		*docs.Public = next
		return nil
	case TargetPrivateProfile:
		if docs.Private == nil {
			return dErrors.New(dErrors.CodeInternal, "private profile not loaded")
		}
		next := *docs.Private
		if err := privateFields[p.Field].set(&next, raw); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		*docs.Private = next
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, "unknown field_path "+p.String())
}

type accessor[D any] struct {
	get func(*D) (json.RawMessage, error)
	set func(*D, json.RawMessage) error
}

// field builds a typed accessor. ref may allocate intermediate containers;
// Get always runs it against a copy.
func field[D, T any](ref func(*D) *T, validate func(T) error) accessor[D] {
	return accessor[D]{
		get: func(d *D) (json.RawMessage, error) {
			return json.Marshal(*ref(d))
		},
		set: func(d *D, raw json.RawMessage) error {
			var v T
			if err := decodeStrict(raw, &v); err != nil {
				return err
			}
			if validate != nil {
				if err := validate(v); err != nil {
					return err
				}
			}
			*ref(d) = v
			return nil
		},
	}
}

func vitalRanges(v *PublicView) *VitalRanges {
	if v.VitalRanges == nil {
		v.VitalRanges = &VitalRanges{}
	} else {
		cp := *v.VitalRanges
		v.VitalRanges = &cp
	}
	return v.VitalRanges
}

func nonNegative(f float64) error {
	if f < 0 {
		return dErrors.New(dErrors.CodeValidation, "vital range values must not be negative")
	}
	return nil
}

func maxLength(n int) func(string) error {
	return func(s string) error {
		if len(s) > n {
			return dErrors.New(dErrors.CodeValidation, "value is too long")
		}
		return nil
	}
}

var publicFields = map[Field]accessor[PublicView]{
	"blood_type":                     field(func(v *PublicView) *string { return &v.BloodType }, validateBloodType),
	"rh_factor":                      field(func(v *PublicView) *string { return &v.RhFactor }, validateRhFactor),
	"allergies":                      field(func(v *PublicView) *[]Allergy { return &v.Allergies }, validateAllergies),
	"emergency_contact":              field(func(v *PublicView) *EmergencyContact { return &v.EmergencyContact }, validateEmergencyContact),
	"emergency_contact.name":         field(func(v *PublicView) *string { return &v.EmergencyContact.Name }, nil),
	"emergency_contact.phone":        field(func(v *PublicView) *string { return &v.EmergencyContact.Phone }, nil),
	"emergency_contact.relationship": field(func(v *PublicView) *string { return &v.EmergencyContact.Relationship }, nil),
	"short_instructions":             field(func(v *PublicView) *string { return &v.ShortInstructions }, validateInstructions),
	"vital_ranges":                   field(func(v *PublicView) **VitalRanges { return &v.VitalRanges }, validateVitalRanges),
	"vital_ranges.heart_rate_min":    field(func(v *PublicView) *float64 { return &vitalRanges(v).HeartRateMin }, nonNegative),
	"vital_ranges.heart_rate_max":    field(func(v *PublicView) *float64 { return &vitalRanges(v).HeartRateMax }, nonNegative),
	"vital_ranges.temperature_min":   field(func(v *PublicView) *float64 { return &vitalRanges(v).TemperatureMin }, nonNegative),
	"vital_ranges.temperature_max":   field(func(v *PublicView) *float64 { return &vitalRanges(v).TemperatureMax }, nonNegative),
}

var privateFields = map[Field]accessor[PrivateProfile]{
	"national_id":          field(func(p *PrivateProfile) *string { return &p.NationalID }, maxLength(64)),
	"full_name":            field(func(p *PrivateProfile) *string { return &p.FullName }, maxLength(256)),
	"date_of_birth":        field(func(p *PrivateProfile) *string { return &p.DateOfBirth }, maxLength(32)),
	"medications":          field(func(p *PrivateProfile) *[]Medication { return &p.Medications }, validateMedications),
	"chronic_conditions":   field(func(p *PrivateProfile) *[]ChronicCondition { return &p.ChronicConditions }, validateConditions),
	"doctor_notes":         field(func(p *PrivateProfile) *string { return &p.DoctorNotes }, nil),
	"full_medical_history": field(func(p *PrivateProfile) *string { return &p.FullMedicalHistory }, nil),
}

// decodeStrict accepts exactly one JSON value of the target type: no
// unknown object keys, no trailing data, no null.
func decodeStrict(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return dErrors.New(dErrors.CodeValidation, "new_value is required")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "new_value has the wrong shape for this field")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return dErrors.New(dErrors.CodeValidation, "new_value has trailing data")
	}
	return nil
}
