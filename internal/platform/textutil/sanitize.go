package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict strips every HTML element and attribute. Free-text fields are stored
// and rendered as plain text, so markup never survives the boundary.
var strict = bluemonday.StrictPolicy()

// CleanText strips markup from a single-line free-text value and trims
// surrounding whitespace. Entities introduced by the sanitiser are decoded so
// literal characters such as & and @ round-trip unchanged.
func CleanText(value string) string {
	cleaned := html.UnescapeString(strict.Sanitize(value))
	return strings.TrimSpace(cleaned)
}

// CleanMultiline sanitises a block of text line by line, preserving line
// breaks while collapsing trailing whitespace on each line.
func CleanMultiline(value string) string {
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(html.UnescapeString(strict.Sanitize(line)), " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
