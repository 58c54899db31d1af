package observability

import (
	"encoding/json"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// Field names whose values never belong in a log line, matched as lowercase
// substrings so header-style variants (x-api-key, Authorization) and
// compound names (refresh_token) all hit.
var secretKeyFragments = []string{
	"api_key", "apikey", "api-key", "authorization", "auth",
	"token", "password", "secret", "bearer", "credential",
}

// RedactJSON rewrites raw so that values under secret-looking keys are
// replaced with a placeholder, recursively through objects and arrays.
// Input that is not valid JSON comes back unchanged.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	b, err := json.Marshal(scrub(v))
	if err != nil {
		return raw
	}
	return b
}

func scrub(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if secretKey(k) {
				val[k] = redactedPlaceholder
			} else {
				val[k] = scrub(inner)
			}
		}
		return val
	case []any:
		for i := range val {
			val[i] = scrub(val[i])
		}
		return val
	default:
		return v
	}
}

func secretKey(k string) bool {
	low := strings.ToLower(k)
	for _, frag := range secretKeyFragments {
		if strings.Contains(low, frag) {
			return true
		}
	}
	return false
}
