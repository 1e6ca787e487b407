package llmutils

import "strings"

const redactedValue = "[REDACTED]"

var sensitiveKeywords = []string{
	"token",
	"secret",
	"password",
	"auth",
	"key",
	"credential",
}

// IsSensitiveKey reports whether a field name looks like it holds a
// credential and must never be logged verbatim.
func IsSensitiveKey(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Redact returns a copy of the map with values of credential-looking keys
// replaced. Nested maps and lists are walked; the input is not modified.
func Redact(val map[string]any) map[string]any {
	if val == nil {
		return nil
	}
	out := make(map[string]any, len(val))
	for k, v := range val {
		if IsSensitiveKey(k) {
			out[k] = redactedValue
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return Redact(vv)
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}

// RedactEnv masks the values of credential-looking variables in a list of
// KEY=VALUE pairs.
func RedactEnv(env []string) []string {
	out := make([]string, len(env))
	for i, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if ok && IsSensitiveKey(name) {
			out[i] = name + "=" + redactedValue
			continue
		}
		out[i] = kv
	}
	return out
}
