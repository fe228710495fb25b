package observability

import (
	"strings"
	"unicode"
)

// logFieldLimit caps free-form values recorded on request log fields.
const logFieldLimit = 256

// clampLogValue strips control characters and bounds the length of a value
// destined for a structured log field. Newlines and tabs survive so wrapped
// values stay readable.
func clampLogValue(value string, limit int) string {
	if limit <= 0 {
		limit = logFieldLimit
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)

	runes := []rune(cleaned)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute normalises a chi route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clampLogValue(route, 180)
}

// SanitizeMethod bounds the HTTP method field.
func SanitizeMethod(method string) string {
	return clampLogValue(method, 10)
}

// SanitizeUserID bounds identity subjects before they reach log output.
func SanitizeUserID(uid string) string {
	return clampLogValue(uid, 64)
}
