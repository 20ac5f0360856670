package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "instahelp/pkg/domain-errors"
)

func TestCanonicalize(t *testing.T) {
	t.Run("sorts keys at every depth and drops the signature", func(t *testing.T) {
		p, err := ParsePayload([]byte(`{"timestamp":"T","signature":"abc","hr":72,"device_id":"D1","bp":{"sys":120,"dia":80}}`))
		require.NoError(t, err)

		got, err := p.Canonicalize()
		require.NoError(t, err)
		assert.Equal(t, `{"bp":{"dia":80,"sys":120},"device_id":"D1","hr":72,"timestamp":"T"}`, string(got))
	})

	t.Run("keeps number text verbatim", func(t *testing.T) {
		p, err := ParsePayload([]byte(`{"temp":36.60,"big":12345678901234567890}`))
		require.NoError(t, err)

		got, err := p.Canonicalize()
		require.NoError(t, err)
		assert.Equal(t, `{"big":12345678901234567890,"temp":36.60}`, string(got))
	})

	t.Run("does not escape HTML characters", func(t *testing.T) {
		p, err := ParsePayload([]byte(`{"note":"a<b&c"}`))
		require.NoError(t, err)

		got, err := p.Canonicalize()
		require.NoError(t, err)
		assert.Equal(t, `{"note":"a<b&c"}`, string(got))
	})

	t.Run("does not mutate the payload", func(t *testing.T) {
		p, err := ParsePayload([]byte(`{"a":1,"signature":"x"}`))
		require.NoError(t, err)
		_, err = p.Canonicalize()
		require.NoError(t, err)
		assert.Equal(t, "x", p.Signature())
	})
}

func TestParsePayload(t *testing.T) {
	for name, raw := range map[string]string{
		"array":    `[1,2]`,
		"null":     `null`,
		"scalar":   `"x"`,
		"trailing": `{"a":1}{"b":2}`,
		"garbage":  `{`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePayload([]byte(raw))
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestReadingFromPayload(t *testing.T) {
	t.Run("splits core fields from additional data", func(t *testing.T) {
		p, err := ParsePayload([]byte(`{"device_id":"D1","timestamp":"2026-01-02T03:04:05Z","hr":72,"temp":"36.6","spo2":98,"signature":"00"}`))
		require.NoError(t, err)

		r, err := ReadingFromPayload(p)
		require.NoError(t, err)
		assert.Equal(t, "D1", string(r.DeviceID))
		require.NotNil(t, r.HeartRate)
		assert.InDelta(t, 72, *r.HeartRate, 0.0001)
		require.NotNil(t, r.Temperature)
		assert.InDelta(t, 36.6, *r.Temperature, 0.0001)
		assert.Len(t, r.AdditionalData, 1)
		assert.Contains(t, r.AdditionalData, "spo2")

		lv := r.LastVitals()
		assert.Equal(t, "2026-01-02T03:04:05Z", lv.Timestamp)
		require.NotNil(t, lv.OxygenSaturation)
		assert.InDelta(t, 98, *lv.OxygenSaturation, 0.0001)
		assert.Nil(t, lv.RespiratoryRate)
	})

	t.Run("requires device_id and timestamp", func(t *testing.T) {
		for _, raw := range []string{`{"timestamp":"T"}`, `{"device_id":"D1"}`} {
			p, err := ParsePayload([]byte(raw))
			require.NoError(t, err)
			_, err = ReadingFromPayload(p)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), raw)
		}
	})

	t.Run("rejects non-numeric measurements", func(t *testing.T) {
		p, err := ParsePayload([]byte(`{"device_id":"D1","timestamp":"T","hr":true}`))
		require.NoError(t, err)
		_, err = ReadingFromPayload(p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
