package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	list := []any{"change_id", "c-1", "version", 3, "status", "pending", "dangling"}

	assert.Equal(t, "c-1", ExtractString(list, "change_id"))
	assert.Equal(t, "pending", ExtractString(list, "status"))
	assert.Empty(t, ExtractString(list, "version"), "non-string values are ignored")
	assert.Empty(t, ExtractString(list, "dangling"), "a key without a value is ignored")
	assert.Empty(t, ExtractString(nil, "change_id"))
}

func TestDetails(t *testing.T) {
	list := []any{"patient_id", "p-1", "field_path", "", "vitals_id", "v-9"}

	assert.Equal(t, map[string]any{"patient_id": "p-1", "vitals_id": "v-9"},
		Details(list, "patient_id", "field_path", "vitals_id", "missing"))
}
