package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "instahelp/pkg/domain-errors"
)

func samplePublicView() PublicView {
	return PublicView{
		BloodType:         "O",
		RhFactor:          "-",
		Allergies:         []Allergy{{Allergen: "penicillin", Severity: "severe", Reaction: "anaphylaxis"}},
		EmergencyContact:  EmergencyContact{Name: "Sam", Phone: "+1-555-0100", Relationship: "sibling"},
		ShortInstructions: "Epipen in left pocket",
	}
}

func TestParseFieldPath(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		changeType string
		want       string
		wantErr    bool
	}{
		{"prefixed public", "public_view.blood_type", "", "public_view.blood_type", false},
		{"prefixed private", "private_profile.medications", "", "private_profile.medications", false},
		{"bare with change type", "allergies", "public_view", "public_view.allergies", false},
		{"nested field", "public_view.emergency_contact.phone", "", "public_view.emergency_contact.phone", false},
		{"prefix agrees with change type", "private_profile.doctor_notes", "private_profile", "private_profile.doctor_notes", false},
		{"prefix disagrees with change type", "public_view.blood_type", "private_profile", "", true},
		{"bare without change type", "blood_type", "", "", true},
		{"device-owned field", "public_view.last_vitals", "", "", true},
		{"unknown field", "public_view.__proto__", "", "", true},
		{"deep traversal", "public_view.allergies.0.allergen", "", "", true},
		{"bad change type", "blood_type", "admin", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFieldPath(tt.path, tt.changeType)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFieldPath_TextRoundTripInJSON(t *testing.T) {
	type wrapper struct {
		Path FieldPath `json:"field_path"`
	}
	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"field_path":"private_profile.full_name"}`), &w))
	assert.True(t, w.Path.IsPrivate())

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"field_path":"private_profile.full_name"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"field_path":"public_view.nope"}`), &w))
}

func TestFieldPath_GetAndApplyPublic(t *testing.T) {
	view := samplePublicView()
	docs := Documents{Public: &view}
	path, err := ParseFieldPath("public_view.blood_type", "")
	require.NoError(t, err)

	old, err := path.Get(docs)
	require.NoError(t, err)
	assert.JSONEq(t, `"O"`, string(old))

	require.NoError(t, path.Apply(docs, json.RawMessage(`"AB"`)))
	assert.Equal(t, "AB", view.BloodType)
}

func TestFieldPath_ApplyRejectsBadValues(t *testing.T) {
	tests := []struct {
		path string
		raw  string
	}{
		{"public_view.blood_type", `"Z"`},
		{"public_view.blood_type", `42`},
		{"public_view.blood_type", `null`},
		{"public_view.blood_type", `"A" "B"`},
		{"public_view.allergies", `[{"allergen":"nuts","severity":"deadly","reaction":"x"}]`},
		{"public_view.allergies", `[{"allergen":"nuts","severity":"mild","reaction":"x","extra":1}]`},
		{"public_view.emergency_contact.phone", `""`},
		{"public_view.short_instructions", `"   "`},
		{"public_view.vital_ranges.heart_rate_min", `-1`},
	}
	for _, tt := range tests {
		t.Run(tt.path+" "+tt.raw, func(t *testing.T) {
			view := samplePublicView()
			before := view
			path, err := ParseFieldPath(tt.path, "")
			require.NoError(t, err)

			err = path.Apply(Documents{Public: &view}, json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, before, view, "document must be unchanged on error")
		})
	}
}

func TestFieldPath_NestedCreatesContainer(t *testing.T) {
	view := samplePublicView()
	require.Nil(t, view.VitalRanges)
	path, err := ParseFieldPath("public_view.vital_ranges.heart_rate_max", "")
	require.NoError(t, err)

	old, err := path.Get(Documents{Public: &view})
	require.NoError(t, err)
	assert.JSONEq(t, `0`, string(old))
	assert.Nil(t, view.VitalRanges, "get must not mutate")

	require.NoError(t, path.Apply(Documents{Public: &view}, json.RawMessage(`120`)))
	require.NotNil(t, view.VitalRanges)
	assert.Equal(t, 120.0, view.VitalRanges.HeartRateMax)
}

func TestFieldPath_NestedDoesNotAliasOriginal(t *testing.T) {
	view := samplePublicView()
	view.VitalRanges = &VitalRanges{HeartRateMin: 50, HeartRateMax: 100}
	shared := view.VitalRanges
	path, err := ParseFieldPath("public_view.vital_ranges.heart_rate_max", "")
	require.NoError(t, err)

	require.NoError(t, path.Apply(Documents{Public: &view}, json.RawMessage(`110`)))
	assert.Equal(t, 100.0, shared.HeartRateMax)
	assert.Equal(t, 110.0, view.VitalRanges.HeartRateMax)
}

func TestFieldPath_WholeDocumentValidation(t *testing.T) {
	view := samplePublicView()
	view.VitalRanges = &VitalRanges{HeartRateMin: 50, HeartRateMax: 100}
	path, err := ParseFieldPath("public_view.vital_ranges.heart_rate_min", "")
	require.NoError(t, err)

	err = path.Apply(Documents{Public: &view}, json.RawMessage(`150`))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, 50.0, view.VitalRanges.HeartRateMin)
}

func TestFieldPath_Private(t *testing.T) {
	profile := PrivateProfile{FullName: "Ada Example"}
	docs := Documents{Private: &profile}
	path, err := ParseFieldPath("medications", "private_profile")
	require.NoError(t, err)

	old, err := path.Get(docs)
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(old))

	require.NoError(t, path.Apply(docs, json.RawMessage(`[{"name":"metformin","dosage":"500mg","frequency":"daily"}]`)))
	require.Len(t, profile.Medications, 1)
	assert.Equal(t, "metformin", profile.Medications[0].Name)

	_, err = path.Get(Documents{Public: &PublicView{}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestFields_ListsEveryPath(t *testing.T) {
	all := Fields()
	assert.Contains(t, all, "public_view.blood_type")
	assert.Contains(t, all, "private_profile.full_medical_history")
	assert.NotContains(t, all, "public_view.last_vitals")
	for _, p := range all {
		_, err := ParseFieldPath(p, "")
		assert.NoError(t, err, p)
	}
}
