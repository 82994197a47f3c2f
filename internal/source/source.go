// Package source holds the generated-source value object and the sanitizer
// that strips module-system statements before the text reaches the
// transformer. Generated code arrives from an external generation service
// and is treated as untrusted.
package source

import "strings"

// Generated is the raw input contract: a blob of generated code plus the
// component name the generator claims to have defined. Immutable once
// received; a new (Code, DeclaredName) pair always starts a fresh synthesis.
type Generated struct {
	Code         string
	DeclaredName string
}

// Equal reports whether two inputs are the same logical request.
func (g Generated) Equal(other Generated) bool {
	return g.Code == other.Code && g.DeclaredName == other.DeclaredName
}

// Sanitize removes module-import/export/require statements from raw source
// text, leaving a bare statement sequence. Every line that is not itself a
// module statement is passed through byte-identical, so downstream offsets
// within surviving lines stay meaningful. Sanitization is pure and never
// fails: with no matching statements the output equals the input.
func Sanitize(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))

	inImportBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inImportBlock {
			if strings.HasPrefix(trimmed, ")") {
				inImportBlock = false
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inImportBlock = true
		case isModuleStatement(trimmed):
			// dropped
		default:
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// isModuleStatement recognizes the single-line module-system forms the
// generation service is known to emit: Go/JS import statements, JS export
// statements, and CommonJS require assignments.
func isModuleStatement(trimmed string) bool {
	switch {
	case strings.HasPrefix(trimmed, "import "):
		return true
	case trimmed == "import":
		return true
	case strings.HasPrefix(trimmed, "export default "):
		return true
	case strings.HasPrefix(trimmed, "export "):
		return true
	case strings.HasPrefix(trimmed, "module.exports"):
		return true
	}
	// const { X } = require("pkg") and friends.
	if idx := strings.Index(trimmed, "require("); idx >= 0 {
		head := trimmed[:idx]
		if strings.Contains(head, "=") || head == "" {
			return true
		}
	}
	return false
}
