package invoke

import "context"

// Func is an Invocable backed by a Go closure.
type Func struct {
	name   string
	target any
	fn     func(ctx context.Context) (any, error)
}

// NewFunc creates a closure invocable that returns no value.
func NewFunc(name string, fn func(ctx context.Context) error) *Func {
	return &Func{
		name: name,
		fn: func(ctx context.Context) (any, error) {
			return nil, fn(ctx)
		},
	}
}

// NewValueFunc creates a closure invocable that returns a value.
func NewValueFunc(name string, fn func(ctx context.Context) (any, error)) *Func {
	return &Func{name: name, fn: fn}
}

// WithTarget associates a target token with the closure and returns it.
func (f *Func) WithTarget(target any) *Func {
	f.target = target
	return f
}

// Invoke runs the closure.
func (f *Func) Invoke(ctx context.Context) (any, error) {
	if f.fn == nil {
		return nil, NewError(KindUnresolved, f.name, nil)
	}
	return f.fn(ctx)
}

// Name returns the closure's operation name.
func (f *Func) Name() string { return f.name }

// Target returns the associated target, if any.
func (f *Func) Target() any { return f.target }
