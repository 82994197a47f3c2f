// Package diag defines the structured failure records the synthesis pipeline
// reports instead of raising. Every stage converts its own failures into a
// Diagnostic before they cross into the runtime guard, so nothing escapes to
// the host as an unhandled error.
package diag

import (
	"fmt"
	"strings"
)

// Kind categorizes where in the pipeline a failure occurred.
type Kind int

const (
	// KindSanitization is reserved: sanitization is a pure line filter and
	// currently cannot fail. Kept so the taxonomy is stable for callers.
	KindSanitization Kind = iota
	// KindTransform marks a malformed markup rewrite.
	KindTransform
	// KindExecution marks a factory compile or run failure.
	KindExecution
	// KindResolution marks an executor result with no resolvable component.
	KindResolution
	// KindRender marks an exception while mounting or updating the
	// resolved component.
	KindRender
	// KindUnsupportedRequest is passed through for chart kinds this engine
	// does not own; it is never generated here.
	KindUnsupportedRequest
)

func (k Kind) String() string {
	switch k {
	case KindSanitization:
		return "SanitizationError"
	case KindTransform:
		return "TransformError"
	case KindExecution:
		return "ExecutionError"
	case KindResolution:
		return "ResolutionError"
	case KindRender:
		return "RenderError"
	case KindUnsupportedRequest:
		return "UnsupportedRequestError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Diagnostic is the user-facing failure record. SourceExcerpt is optional
// and, when present, holds a short slice of the offending source to aid
// prompt refinement.
type Diagnostic struct {
	Kind          Kind
	Message       string
	SourceExcerpt string
}

// New builds a Diagnostic without an excerpt.
func New(kind Kind, format string, args ...any) *Diagnostic {
	return &Diagnostic{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithExcerpt attaches a source excerpt and returns the diagnostic.
func (d *Diagnostic) WithExcerpt(excerpt string) *Diagnostic {
	d.SourceExcerpt = excerpt
	return d
}

// Error makes a Diagnostic usable as an error value inside the pipeline.
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// excerptRadius bounds how much source surrounds the failure offset.
const excerptRadius = 60

// ExcerptAround returns a short, single-line excerpt of src centered on
// offset, suitable for direct display next to a diagnostic message. Offsets
// outside src are clamped.
func ExcerptAround(src string, offset int) string {
	if src == "" {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(src) {
		offset = len(src)
	}
	start := offset - excerptRadius
	if start < 0 {
		start = 0
	}
	end := offset + excerptRadius
	if end > len(src) {
		end = len(src)
	}
	excerpt := strings.Join(strings.Fields(src[start:end]), " ")
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(src) {
		excerpt += "..."
	}
	return excerpt
}

// FromError wraps an arbitrary error as a Diagnostic of the given kind,
// passing Diagnostics through unchanged so kinds assigned deeper in the
// pipeline are preserved.
func FromError(kind Kind, err error) *Diagnostic {
	if err == nil {
		return nil
	}
	if d, ok := err.(*Diagnostic); ok {
		return d
	}
	return &Diagnostic{Kind: kind, Message: err.Error()}
}
