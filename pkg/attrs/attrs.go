// Package attrs reads slog-style key/value argument lists, so one attribute
// list can feed both a log line and an audit record.
package attrs

// ExtractString returns the string value paired with key in a
// [key1, value1, key2, value2, ...] list, or "" when absent or not a string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			v, _ := attrs[i+1].(string)
			return v
		}
	}
	return ""
}

// Details collects the named keys that carry a non-empty string value.
func Details(attrs []any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if v := ExtractString(attrs, key); v != "" {
			out[key] = v
		}
	}
	return out
}
