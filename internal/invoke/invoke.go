// Package invoke provides the invocation capability consumed by the history
// engine: something that can be called and reports a value or a structured
// failure.
//
// Three variants are provided:
//   - Func: a Go closure
//   - Method: a method bound by name on a target, resolved once at construction
//   - Lua: a gopher-lua function run on a shared state
//
// Call wraps any Invocable so that panics and plain errors are converted to
// *Error values. Nothing invoked through Call can panic past it.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// Invocable is an operation that can be invoked.
type Invocable interface {
	// Invoke runs the operation.
	Invoke(ctx context.Context) (any, error)

	// Name returns the operation name.
	Name() string

	// Target returns the object the operation acts on, or nil.
	Target() any
}

// Referencer is implemented by invocables that reference resources other
// than their Target.
type Referencer interface {
	References(token any) bool
}

// Call invokes inv, converting every failure into an *Error.
// A nil Invocable is reported as unresolved.
func Call(ctx context.Context, inv Invocable) (value any, err error) {
	if isNil(inv) {
		return nil, NewError(KindUnresolved, "<nil>", errors.New("no operation"))
	}

	name := inv.Name()
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = NewError(KindTargetFailed, name, &PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	value, err = inv.Invoke(ctx)
	if err == nil {
		return value, nil
	}

	var ie *Error
	if errors.As(err, &ie) {
		return value, err
	}
	return value, NewError(KindTargetFailed, name, err)
}

// PanicError records a panic recovered during invocation.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Refers reports whether inv is associated with token, either because its
// Target equals token or because it implements Referencer and says so.
func Refers(inv Invocable, token any) bool {
	if isNil(inv) || token == nil {
		return false
	}
	if r, ok := inv.(Referencer); ok && r.References(token) {
		return true
	}
	return SameToken(inv.Target(), token)
}

// SameToken compares two tokens without panicking on uncomparable values.
func SameToken(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func isNil(inv Invocable) bool {
	if inv == nil {
		return true
	}
	v := reflect.ValueOf(inv)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
