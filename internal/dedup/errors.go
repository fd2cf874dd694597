package dedup

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrMergeConflict is reported by a MergeCommitter when the target record
// changed between candidate lookup and commit. The caller should resolve
// the record again.
var ErrMergeConflict = eris.New("merge conflict: target version changed")

// LookupError reports that candidate lookup failed. A failed lookup never
// degrades into a CreateNew decision.
type LookupError struct {
	Err error
}

func (e *LookupError) Error() string {
	return "dedup: fetch candidates: " + e.Err.Error()
}

// Unwrap returns the underlying store error.
func (e *LookupError) Unwrap() error {
	return e.Err
}

// IsLookupError reports whether err is or wraps a *LookupError.
func IsLookupError(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}
