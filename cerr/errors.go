// Package cerr defines the compiler's error taxonomy.
//
// Shape-tracker errors (InvalidCompose, AxisOutOfRange) and expression
// errors (UnresolvedVariable) are fatal to the operation that raised them.
// RewriteSkipped is caught by rewrite.Run and is non-fatal: the pass logs it
// and moves on to the next match. PatternMalformed is reported by
// selector.Selector.Validate, which rewrite.Run calls before searching, so
// the pass aborts before any graph is touched.
package cerr

import "github.com/pkg/errors"

// Sentinel errors. Wrap with errors.Wrap / unwrap with errors.Cause so
// call sites can attach context without losing Is/As comparability.
var (
	ErrInvalidCompose     = errors.New("shape: invalid compose")
	ErrAxisOutOfRange     = errors.New("shape: axis out of range")
	ErrUnresolvedVariable = errors.New("symbolic: unresolved variable")
	ErrPatternMalformed   = errors.New("selector: pattern malformed")
)

// RewriteSkipped reports that a structurally valid match was not applied.
// It is non-fatal: rewrite.Run logs it via obslog and continues with the
// next match.
type RewriteSkipped struct {
	Reason string
}

func (e *RewriteSkipped) Error() string {
	return "rewrite skipped: " + e.Reason
}

// NewRewriteSkipped builds a RewriteSkipped with the given reason.
func NewRewriteSkipped(reason string) error {
	return &RewriteSkipped{Reason: reason}
}

// IsRewriteSkipped reports whether err is (or wraps) a *RewriteSkipped.
func IsRewriteSkipped(err error) (*RewriteSkipped, bool) {
	var rs *RewriteSkipped
	if errors.As(err, &rs) {
		return rs, true
	}
	return nil, false
}
