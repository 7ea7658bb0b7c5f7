package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap returns a copy of metadata with secret looking keys
// replaced, recursing into nested maps and slices.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

var sensitiveTokens = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"private",
	"signature",
	"jws",
	"proof",
	"card_number",
	"cvv",
	"iban",
	"account_number",
	"routing_number",
	"ssn",
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "ledger_event_id",
		"credential_id",
		"credential_type",
		"receipt_id",
		"reference",
		"idempotency_key",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
