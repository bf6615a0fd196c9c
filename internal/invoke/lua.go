package invoke

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// ErrVMClosed is returned when invoking a Lua function on a closed VM.
var ErrVMClosed = errors.New("lua vm is closed")

// VM wraps a gopher-lua state shared by Lua invocables.
//
// gopher-lua's LState is not goroutine-safe. VM serializes every call
// through its mutex.
type VM struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

// NewVM creates a VM with the standard Lua libraries loaded.
func NewVM() *VM {
	return &VM{L: lua.NewState()}
}

// NewSandboxVM creates a VM with only the base, table, string and math
// libraries. Scripts run on it cannot reach the file system or the process.
func NewSandboxVM() *VM {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	return &VM{L: L}
}

// Do runs fn with exclusive access to the Lua state.
func (vm *VM) Do(fn func(L *lua.LState) error) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed {
		return ErrVMClosed
	}
	return fn(vm.L)
}

// Close releases the Lua state. Safe to call more than once.
func (vm *VM) Close() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if !vm.closed {
		vm.closed = true
		vm.L.Close()
	}
}

// Lua is an Invocable that calls a Lua function.
type Lua struct {
	vm     *VM
	fn     *lua.LFunction
	name   string
	args   []any
	target any
}

// NewLua creates an invocable for fn on vm. Args are converted to Lua
// values at each call.
func NewLua(vm *VM, name string, fn *lua.LFunction, args ...any) *Lua {
	return &Lua{vm: vm, fn: fn, name: name, args: args}
}

// WithTarget associates a target token with the function and returns it.
func (l *Lua) WithTarget(target any) *Lua {
	l.target = target
	return l
}

// Invoke calls the Lua function and returns its first result converted to Go.
func (l *Lua) Invoke(ctx context.Context) (any, error) {
	if l.vm == nil || l.fn == nil {
		return nil, NewError(KindUnresolved, l.name, errors.New("no lua function"))
	}

	var result any
	err := l.vm.Do(func(L *lua.LState) error {
		L.SetContext(ctx)
		defer L.RemoveContext()

		args := make([]lua.LValue, len(l.args))
		for i, a := range l.args {
			args[i] = ToLValue(L, a)
		}

		if err := L.CallByParam(lua.P{Fn: l.fn, NRet: 1, Protect: true}, args...); err != nil {
			return err
		}
		result = FromLValue(L.Get(-1))
		L.Pop(1)
		return nil
	})
	if errors.Is(err, ErrVMClosed) {
		return nil, NewError(KindUnresolved, l.name, err)
	}
	return result, err
}

// Name returns the operation name.
func (l *Lua) Name() string { return l.name }

// Target returns the associated target, if any.
func (l *Lua) Target() any { return l.target }

// ToLValue converts a Go value into a Lua value.
func ToLValue(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []string:
		t := L.NewTable()
		for _, s := range x {
			t.Append(lua.LString(s))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// FromLValue converts a Lua value into a Go value.
func FromLValue(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	case lua.LNumber:
		return float64(x)
	case *lua.LNilType:
		return nil
	default:
		return v
	}
}
