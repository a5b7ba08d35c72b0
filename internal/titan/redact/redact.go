// Package redact strips sensitive values out of log lines and trace detail
// payloads before they leave the process boundary.
//
// Secrets resolved from the vault or from connector credentials must never
// reach the memory store's trace_events table or a slog line. Redaction is
// best-effort: it operates on string/map representations and relies on
// callers picking the right sensitive keys or values.
package redact

import "strings"

const placeholder = "[REDACTED]"

// sensitiveKeyWords are substrings of map keys treated as carrying secrets.
var sensitiveKeyWords = []string{"token", "authorization", "auth", "password", "secret", "key", "credential", "apikey"}

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Map returns a shallow copy of m with string values replaced by
// [REDACTED] for every key whose name suggests it holds a secret. This is
// the function the connector pipeline uses to sanitise tool input before it
// is written into a connector_tool_requested trace.
func Map(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			if str, ok := v.(string); ok && str != "" {
				out[k] = placeholder
				continue
			}
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range sensitiveKeyWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
