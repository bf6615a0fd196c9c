package viewer

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/revview/internal/invoke"
)

// MaxScriptActions is the number of action slots, bound to keys 1-9.
const MaxScriptActions = 9

// Scripts hosts Lua actions.
//
// A script registers actions with revview.action(slot, name, fn). When an
// action runs, fn receives the one-based cursor line and edits the current
// document through the revview module:
//
//	revview.line(n)            text of line n
//	revview.set_line(n, text)  replace line n
//	revview.insert_line(n, t)  insert before line n
//	revview.delete_line(n)     remove line n
//	revview.line_count()       number of lines
//	revview.status(msg)        show a status message
//
// Redo runs the action again, so actions must be deterministic.
type Scripts struct {
	vm      *invoke.VM
	doc     func() *Document
	report  func(msg string)
	actions [MaxScriptActions + 1]*scriptAction
}

type scriptAction struct {
	name string
	fn   *lua.LFunction
}

// NewScripts creates a script host editing whatever doc returns.
// report receives revview.status messages and may be nil.
func NewScripts(doc func() *Document, report func(msg string)) *Scripts {
	if report == nil {
		report = func(string) {}
	}
	s := &Scripts{vm: invoke.NewSandboxVM(), doc: doc, report: report}
	_ = s.vm.Do(func(L *lua.LState) error {
		L.SetGlobal("revview", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"action":      s.luaAction,
			"line":        s.luaLine,
			"set_line":    s.luaSetLine,
			"insert_line": s.luaInsertLine,
			"delete_line": s.luaDeleteLine,
			"line_count":  s.luaLineCount,
			"status":      s.luaStatus,
		}))
		return nil
	})
	return s
}

// LoadScripts creates a script host and runs the file at path.
func LoadScripts(path string, doc func() *Document, report func(msg string)) (*Scripts, error) {
	s := NewScripts(doc, report)
	if err := s.DoFile(path); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// DoFile runs a script file.
func (s *Scripts) DoFile(path string) error {
	return s.load(path, func(L *lua.LState) error { return L.DoFile(path) })
}

// DoString runs script source.
func (s *Scripts) DoString(src string) error {
	return s.load("<string>", func(L *lua.LState) error { return L.DoString(src) })
}

func (s *Scripts) load(name string, fn func(L *lua.LState) error) error {
	if err := s.vm.Do(fn); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrScriptLoad, name, err)
	}
	return nil
}

// Close releases the Lua state.
func (s *Scripts) Close() {
	s.vm.Close()
}

// Action returns an invocable running action slot on line of doc.
func (s *Scripts) Action(slot, line int, doc *Document) (*invoke.Lua, error) {
	if slot < 1 || slot > MaxScriptActions || s.actions[slot] == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoScript, slot)
	}
	a := s.actions[slot]
	return invoke.NewLua(s.vm, a.name, a.fn, line+1).WithTarget(doc), nil
}

// Names returns the registered action names keyed by slot.
func (s *Scripts) Names() map[int]string {
	names := make(map[int]string)
	for slot, a := range s.actions {
		if a != nil {
			names[slot] = a.name
		}
	}
	return names
}

// Slots returns the registered slots in order.
func (s *Scripts) Slots() []int {
	var slots []int
	for slot, a := range s.actions {
		if a != nil {
			slots = append(slots, slot)
		}
	}
	return slots
}

func (s *Scripts) luaAction(L *lua.LState) int {
	slot := L.CheckInt(1)
	name := L.CheckString(2)
	fn := L.CheckFunction(3)
	if slot < 1 || slot > MaxScriptActions {
		L.ArgError(1, fmt.Sprintf("slot must be 1-%d", MaxScriptActions))
		return 0
	}
	s.actions[slot] = &scriptAction{name: name, fn: fn}
	return 0
}

func (s *Scripts) document(L *lua.LState) *Document {
	doc := s.doc()
	if doc == nil {
		L.RaiseError("no document")
	}
	return doc
}

func (s *Scripts) luaLine(L *lua.LState) int {
	L.Push(lua.LString(s.document(L).Line(L.CheckInt(1) - 1)))
	return 1
}

func (s *Scripts) luaLineCount(L *lua.LState) int {
	L.Push(lua.LNumber(s.document(L).LineCount()))
	return 1
}

func (s *Scripts) luaSetLine(L *lua.LState) int {
	check(L, s.document(L).SetLine(L.CheckInt(1)-1, L.CheckString(2)))
	return 0
}

func (s *Scripts) luaInsertLine(L *lua.LState) int {
	check(L, s.document(L).InsertLine(L.CheckInt(1)-1, L.CheckString(2)))
	return 0
}

func (s *Scripts) luaDeleteLine(L *lua.LState) int {
	check(L, s.document(L).DeleteLine(L.CheckInt(1)-1))
	return 0
}

func (s *Scripts) luaStatus(L *lua.LState) int {
	s.report(L.CheckString(1))
	return 0
}

func check(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
}
