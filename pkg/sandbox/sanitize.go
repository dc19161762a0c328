package sandbox

import (
	"regexp"
	"strings"
	"unicode"
)

var ansiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// sanitizeOutput makes captured script output safe to log, print to a
// terminal and embed in JSON: escape sequences and control characters
// other than newline, tab and carriage return are removed, and a rune
// split by truncation is replaced.
func sanitizeOutput(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = ansiSequence.ReplaceAllString(s, "")

	clean := true
	for _, r := range s {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}
