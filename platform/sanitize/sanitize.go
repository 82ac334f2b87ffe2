// Package sanitize cleans user-supplied free text before it is stored.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Text strips markup, decodes entities and collapses runs of whitespace.
// Tags are stripped again after decoding so encoded markup does not survive.
func Text(s string) string {
	out := tagPattern.ReplaceAllString(s, "")
	out = html.UnescapeString(out)
	out = tagPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(spacePattern.ReplaceAllString(out, " "))
}

// Multiline is Text for long fields: line breaks are kept, other blank runs collapse.
func Multiline(s string) string {
	out := tagPattern.ReplaceAllString(s, "")
	out = html.UnescapeString(out)
	out = tagPattern.ReplaceAllString(out, "")
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
