package invoke

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"unicode"
	"unicode/utf8"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Method is an Invocable bound to a named method on a target.
//
// The method and its arguments are resolved when the Method is created.
// If the method's first parameter is a context.Context and no argument
// was supplied for it, the invocation context is passed.
type Method struct {
	target  any
	name    string
	fn      reflect.Value
	args    []reflect.Value
	withCtx bool
}

// NewMethod resolves the method called name on target and binds args to it.
//
// An exact match of argument types is preferred. Otherwise each argument is
// coerced: numeric kinds are converted when no value is lost, pointers are dereferenced or values
// addressed to meet the parameter type, and nil satisfies any nillable
// parameter.
func NewMethod(target any, name string, args ...any) (*Method, error) {
	if target == nil {
		return nil, NewError(KindUnresolved, name, fmt.Errorf("nil target"))
	}
	if name == "" {
		return nil, NewError(KindUnresolved, name, fmt.Errorf("empty method name"))
	}
	if r, _ := utf8.DecodeRuneInString(name); !unicode.IsUpper(r) {
		return nil, NewError(KindInaccessible, name, fmt.Errorf("method %s is not exported", name))
	}

	v := reflect.ValueOf(target)
	fn := v.MethodByName(name)
	if !fn.IsValid() {
		if v.Kind() != reflect.Pointer {
			if _, ok := reflect.PointerTo(v.Type()).MethodByName(name); ok {
				return nil, NewError(KindUnresolved, name,
					fmt.Errorf("method %s has a pointer receiver; target %s passed by value", name, v.Type()))
			}
		}
		return nil, NewError(KindUnresolved, name, fmt.Errorf("no method %s on %s", name, v.Type()))
	}

	m := &Method{target: target, name: name, fn: fn}

	mt := fn.Type()
	n := len(args)
	if mt.NumIn() > 0 && mt.In(0) == contextType && !leadingContext(args) {
		m.withCtx = true
		n++
	}
	params := paramTypes(mt, n)
	if params == nil {
		return nil, NewError(KindUnresolved, name,
			fmt.Errorf("method %s takes %d arguments, got %d", name, mt.NumIn(), len(args)))
	}
	if m.withCtx {
		params = params[1:]
	}

	bound, ok := bindExact(params, args)
	if !ok {
		var err error
		bound, err = bindCompatible(params, args)
		if err != nil {
			return nil, NewError(KindUnresolved, name, err)
		}
	}
	m.args = bound

	return m, nil
}

// MustMethod is like NewMethod but panics on resolution failure.
// Intended for bindings known to be valid at compile time.
func MustMethod(target any, name string, args ...any) *Method {
	m, err := NewMethod(target, name, args...)
	if err != nil {
		panic(err)
	}
	return m
}

// Invoke calls the bound method.
// A non-nil trailing error result is returned as the call's error.
func (m *Method) Invoke(ctx context.Context) (any, error) {
	in := m.args
	if m.withCtx {
		in = append([]reflect.Value{reflect.ValueOf(&ctx).Elem()}, m.args...)
	}

	out := m.fn.Call(in)

	var value any
	for i, o := range out {
		if i == len(out)-1 && o.Type() == errorType {
			if !o.IsNil() {
				return value, o.Interface().(error)
			}
			break
		}
		if value == nil {
			value = o.Interface()
		}
	}
	return value, nil
}

// Name returns the method name.
func (m *Method) Name() string { return m.name }

// Target returns the receiver the method is bound to.
func (m *Method) Target() any { return m.target }

// paramTypes returns the parameter types for a call with n arguments,
// expanding a variadic tail. Returns nil if n does not fit the signature.
func paramTypes(mt reflect.Type, n int) []reflect.Type {
	numIn := mt.NumIn()
	if mt.IsVariadic() {
		if n < numIn-1 {
			return nil
		}
	} else if n != numIn {
		return nil
	}

	params := make([]reflect.Type, n)
	for i := 0; i < n; i++ {
		if mt.IsVariadic() && i >= numIn-1 {
			params[i] = mt.In(numIn - 1).Elem()
		} else {
			params[i] = mt.In(i)
		}
	}
	return params
}

func leadingContext(args []any) bool {
	if len(args) == 0 || args[0] == nil {
		return false
	}
	return reflect.TypeOf(args[0]).Implements(contextType)
}

func bindExact(params []reflect.Type, args []any) ([]reflect.Value, bool) {
	out := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil || reflect.TypeOf(a) != params[i] {
			return nil, false
		}
		out[i] = reflect.ValueOf(a)
	}
	return out, true
}

func bindCompatible(params []reflect.Type, args []any) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := coerce(a, params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func coerce(arg any, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		if nillable(pt.Kind()) {
			return reflect.Zero(pt), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", pt)
	}

	av := reflect.ValueOf(arg)
	at := av.Type()

	switch {
	case at.AssignableTo(pt):
		return av, nil
	case at.Kind() == reflect.Pointer && !av.IsNil() && at.Elem().AssignableTo(pt):
		return av.Elem(), nil
	case pt.Kind() == reflect.Pointer && at.AssignableTo(pt.Elem()):
		p := reflect.New(pt.Elem())
		p.Elem().Set(av)
		return p, nil
	case numeric(at.Kind()) && numeric(pt.Kind()):
		return convertNumeric(av, pt)
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", at, pt)
}

// convertNumeric converts av to pt only if the value survives the round
// trip: no overflow, no sign change and no lost fraction or precision.
// Floats never convert to integers.
func convertNumeric(av reflect.Value, pt reflect.Type) (reflect.Value, error) {
	at := av.Type()
	if isFloat(at.Kind()) && !isFloat(pt.Kind()) {
		return reflect.Value{}, fmt.Errorf("cannot use %s as %s: fraction would be lost", at, pt)
	}
	out := av.Convert(pt)
	if isFloat(at.Kind()) && math.IsNaN(av.Float()) {
		return out, nil
	}
	if !out.Convert(at).Equal(av) {
		return reflect.Value{}, fmt.Errorf("cannot use %s value %v as %s: out of range", at, av, pt)
	}
	return out, nil
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func nillable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
