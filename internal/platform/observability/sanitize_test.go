package observability

import (
	"strings"
	"testing"
)

func TestClampLogValueStripsControlCharacters(t *testing.T) {
	got := clampLogValue("GET\x00 /orders\x1b[31m", 0)
	if got != "GET /orders[31m" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestClampLogValueKeepsWhitespaceControls(t *testing.T) {
	got := clampLogValue("line one\nline two\ttail", 0)
	if got != "line one\nline two\ttail" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestClampLogValueTruncatesByRunes(t *testing.T) {
	got := clampLogValue(strings.Repeat("é", 300), 0)
	if runes := []rune(got); len(runes) != logFieldLimit {
		t.Fatalf("expected %d runes, got %d", logFieldLimit, len(runes))
	}
}

func TestSanitizeRouteDefaultsToRoot(t *testing.T) {
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("unexpected route %q", got)
	}
}
