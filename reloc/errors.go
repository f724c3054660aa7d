package reloc

import "github.com/pkg/errors"

// FailKind enumerates the ways Relocalise can fail; these are the only
// error variants that propagate out of Relocalise to the caller.
type FailKind string

const (
	EmptyCandidatePool FailKind = "EmptyCandidatePool"
	Timeout            FailKind = "Timeout"
	Cancelled          FailKind = "Cancelled"
)

// RelocError wraps a FailKind with enough context for logging; callers
// that only care about the kind should compare Kind directly or use
// errors.Is against the package-level sentinels below.
type RelocError struct {
	Kind   FailKind
	Detail string
}

func (e *RelocError) Error() string {
	if e.Detail == "" {
		return "reloc: " + string(e.Kind)
	}
	return "reloc: " + string(e.Kind) + ": " + e.Detail
}

// Is supports errors.Is(err, reloc.ErrTimeout) and friends by comparing
// Kind, ignoring Detail.
func (e *RelocError) Is(target error) bool {
	other, ok := target.(*RelocError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel RelocErrors for use with errors.Is.
var (
	ErrEmptyCandidatePool = &RelocError{Kind: EmptyCandidatePool}
	ErrTimeout            = &RelocError{Kind: Timeout}
	ErrCancelled          = &RelocError{Kind: Cancelled}
)

func failf(kind FailKind, detail string) error {
	return &RelocError{Kind: kind, Detail: detail}
}

// ShapeMismatchError is returned by Predict/Relocalise, wrapped with a stack
// trace (so match it with errors.As), when input images disagree on
// dimensions.
type ShapeMismatchError struct {
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	return "reloc: shape mismatch: " + e.Detail
}

func shapeMismatch(detail string) error {
	return errors.WithStack(&ShapeMismatchError{Detail: detail})
}
