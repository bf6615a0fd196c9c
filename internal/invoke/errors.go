package invoke

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure kind. Use errors.Is against these.
var (
	// ErrUnresolved indicates the operation could not be found or bound.
	ErrUnresolved = errors.New("operation unresolved")

	// ErrInaccessible indicates the operation exists but cannot be called.
	ErrInaccessible = errors.New("operation inaccessible")

	// ErrTargetFailed indicates the operation ran and failed or panicked.
	ErrTargetFailed = errors.New("operation failed")
)

// Kind classifies an invocation failure.
type Kind int

const (
	// KindUnresolved means the named operation does not exist or its
	// arguments could not be matched.
	KindUnresolved Kind = iota + 1
	// KindInaccessible means the operation is not exported.
	KindInaccessible
	// KindTargetFailed means the operation returned an error or panicked.
	KindTargetFailed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnresolved:
		return "unresolved"
	case KindInaccessible:
		return "inaccessible"
	case KindTargetFailed:
		return "target failed"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnresolved:
		return ErrUnresolved
	case KindInaccessible:
		return ErrInaccessible
	case KindTargetFailed:
		return ErrTargetFailed
	default:
		return nil
	}
}

// Error is the structured failure of an invocation.
type Error struct {
	Kind Kind   // Failure class
	Op   string // Operation name
	Err  error  // Underlying cause, may be nil
}

// NewError creates a new invocation error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("invoke %s: %s", e.Op, e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel for the error's kind as well as the wrapped error.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if s := e.Kind.sentinel(); s != nil && target == s {
		return true
	}
	return errors.Is(e.Err, target)
}

// KindOf returns the kind of err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return 0, false
}
