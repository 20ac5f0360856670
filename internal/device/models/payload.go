package models

import (
	"bytes"
	"encoding/json"
	"maps"

	dErrors "instahelp/pkg/domain-errors"
)

// SignatureField is excluded from the canonical form.
const SignatureField = "signature"

// Payload is a telemetry message as the device sent it. Numbers are kept as
// json.Number so the canonical form reproduces the device's digits exactly.
type Payload map[string]any

// ParsePayload decodes a JSON object.
func ParsePayload(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil || p == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "telemetry payload must be a JSON object")
	}
	if dec.More() {
		return nil, dErrors.New(dErrors.CodeValidation, "telemetry payload has trailing data")
	}
	return p, nil
}

// Signature returns the signature field, or "" when absent or not a string.
func (p Payload) Signature() string {
	s, _ := p[SignatureField].(string)
	return s
}

// String returns a string field, or "" when absent or not a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Canonicalize serializes every field except the signature as compact JSON
// with object keys sorted at every depth and no HTML escaping. Devices
// must produce byte-identical output for the same fields.
func (p Payload) Canonicalize() ([]byte, error) {
	unsigned := maps.Clone(map[string]any(p))
	delete(unsigned, SignatureField)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(unsigned); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "telemetry payload cannot be canonicalized")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
