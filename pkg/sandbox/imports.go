package sandbox

import (
	"fmt"
	"strings"
)

// AllowedImports are the standard packages a script may use. They are
// already in scope, so import statements naming them are optional.
var AllowedImports = []string{"math", "sort", "strconv", "strings"}

func allowed(path string) bool {
	for _, p := range AllowedImports {
		if p == path {
			return true
		}
	}
	return false
}

// stripImports blanks out import statements so the remaining code can be
// evaluated as a statement list. Line numbers are preserved for error
// messages. Any import outside AllowedImports is an error.
func stripImports(code string) (string, error) {
	lines := strings.Split(code, "\n")
	var forbidden []string

	inBlock := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		var spec string
		switch {
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
			lines[i] = ""
			continue
		case inBlock:
			spec = trimmed
		case strings.HasPrefix(trimmed, "import ("), trimmed == "import(":
			inBlock = true
			lines[i] = ""
			continue
		case strings.HasPrefix(trimmed, "import "), strings.HasPrefix(trimmed, "import\t"):
			spec = strings.TrimSpace(strings.TrimPrefix(trimmed, "import"))
		default:
			continue
		}

		lines[i] = ""
		if spec == "" || strings.HasPrefix(spec, "//") {
			continue
		}
		path := importPath(spec)
		if !allowed(path) {
			forbidden = append(forbidden, path)
		}
	}

	if inBlock {
		return "", fmt.Errorf("unterminated import block")
	}
	if len(forbidden) > 0 {
		return "", fmt.Errorf("forbidden imports %q (allowed: %s)", forbidden, strings.Join(AllowedImports, ", "))
	}
	return strings.Join(lines, "\n"), nil
}

// importPath extracts the quoted path from an import spec such as
// `m "math"` or `"math" // comment`.
func importPath(spec string) string {
	start := strings.IndexAny(spec, "\"`")
	if start < 0 {
		return spec
	}
	end := strings.IndexAny(spec[start+1:], "\"`")
	if end < 0 {
		return spec[start+1:]
	}
	return spec[start+1 : start+1+end]
}
