package history

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/revview/internal/logging"
)

// Stack identifies one of the two history stacks.
type Stack int

const (
	// UndoStack holds entries replayed by Undo.
	UndoStack Stack = iota
	// RedoStack holds entries replayed by Redo.
	RedoStack
)

// String returns the stack name.
func (s Stack) String() string {
	if s == RedoStack {
		return "redo"
	}
	return "undo"
}

func (s Stack) opposite() Stack {
	if s == UndoStack {
		return RedoStack
	}
	return UndoStack
}

// Engine records reversible commands and replays them.
//
// Every method takes the engine lock for its whole duration, including
// command replay and observer notification. The lock is recorded in the
// context handed to replayed commands, so a command that calls back into
// the engine with that context does not deadlock. The same applies to the
// context returned by Lock.
type Engine struct {
	mu sync.Mutex

	undoTop   *node
	redoTop   *node
	undoDepth int
	redoDepth int

	groupDepth int
	groupUndo  *node
	groupRedo  *node

	enabled     bool
	redoCredits int
	dirty       bool

	observer Observer
	sink     StatusSink
	logger   *logging.Logger
	recorder Recorder
	tracer   trace.Tracer
	padding  int
	now      func() time.Time
}

// New creates an enabled, empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		enabled:  true,
		recorder: nopRecorder{},
		tracer:   defaultTracer(),
		padding:  DefaultRedrawPadding,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Null()
	}
	if e.sink == nil {
		e.sink = NewLogSink(nil)
	}
	e.logger = e.logger.WithComponent("history")
	return e
}

type heldKey struct{ e *Engine }

// acquire takes the engine lock unless ctx already carries it.
// The returned release notifies observers if the outermost holder changed
// state, then unlocks.
func (e *Engine) acquire(ctx context.Context) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Value(heldKey{e}) != nil {
		return ctx, func() {}
	}
	e.mu.Lock()
	return context.WithValue(ctx, heldKey{e}, true), e.release
}

func (e *Engine) release() {
	if e.dirty {
		e.dirty = false
		e.notifyLocked()
	}
	e.mu.Unlock()
}

// Lock acquires the engine lock for callers that must perform an edit and
// record it atomically with respect to other goroutines. Pass the returned
// context to engine methods while holding the lock, and call unlock when
// done. The context must not be shared with other goroutines.
func (e *Engine) Lock(ctx context.Context) (held context.Context, unlock func()) {
	return e.acquire(ctx)
}

// AddUndo records cmd on the undo stack.
//
// While a group is open the command is buffered. Otherwise a pending redo
// credit is consumed, or, without credit, the redo stack is discarded.
func (e *Engine) AddUndo(ctx context.Context, cmd Command) {
	_, release := e.acquire(ctx)
	defer release()
	e.addLocked(UndoStack, newLeafNode(cmd, e.now()))
}

// AddRedo records cmd on the redo stack. It never discards the undo stack.
func (e *Engine) AddRedo(ctx context.Context, cmd Command) {
	_, release := e.acquire(ctx)
	defer release()
	e.addLocked(RedoStack, newLeafNode(cmd, e.now()))
}

// addLocked pushes n onto the given stack, or onto the open group buffer.
func (e *Engine) addLocked(stack Stack, n *node) {
	if !e.enabled {
		return
	}

	if e.groupDepth > 0 {
		if stack == UndoStack {
			e.groupUndo = push(e.groupUndo, n)
		} else {
			e.groupRedo = push(e.groupRedo, n)
		}
		return
	}

	switch stack {
	case UndoStack:
		if e.redoCredits > 0 {
			e.redoCredits--
		} else if e.redoTop != nil {
			e.logger.Debug("discarding %d redo entries", e.redoDepth)
			e.redoTop = nil
			e.redoDepth = 0
		}
		e.undoTop = push(e.undoTop, n)
		e.undoDepth++
	case RedoStack:
		e.redoTop = push(e.redoTop, n)
		e.redoDepth++
	}

	e.logger.Debug("recorded %s entry %q", stack, n.label())
	e.recorder.Recorded(stack)
	e.dirty = true
}

// Undo pops the most recent undo entry and replays it. If the entry has an
// inverse it moves to the redo stack. Does nothing if there is nothing to undo.
func (e *Engine) Undo(ctx context.Context) {
	ctx, release := e.acquire(ctx)
	defer release()
	e.replayTop(ctx, UndoStack)
}

// Redo pops the most recent redo entry and replays it. If the entry has an
// inverse it moves back to the undo stack without discarding the remaining
// redo entries. Does nothing if there is nothing to redo.
func (e *Engine) Redo(ctx context.Context) {
	ctx, release := e.acquire(ctx)
	defer release()
	e.replayTop(ctx, RedoStack)
}

// BeginGroup opens a group. Groups nest; entries recorded until the
// matching outermost EndGroup become one history entry.
func (e *Engine) BeginGroup(ctx context.Context) {
	_, release := e.acquire(ctx)
	defer release()
	e.beginGroupLocked()
}

// EndGroup closes a group. When the outermost group closes, the buffered
// entries are folded into a single entry named name.
// Calling EndGroup with no open group does nothing.
func (e *Engine) EndGroup(ctx context.Context, name string) {
	_, release := e.acquire(ctx)
	defer release()
	e.endGroupLocked(name)
}

// CancelGroup closes every open group and drops the buffered entries.
// Edits already performed are not reverted.
func (e *Engine) CancelGroup(ctx context.Context) {
	_, release := e.acquire(ctx)
	defer release()
	if e.groupDepth > 0 {
		e.logger.Debug("cancelling group at depth %d", e.groupDepth)
	}
	e.groupDepth = 0
	e.groupUndo = nil
	e.groupRedo = nil
}

func (e *Engine) beginGroupLocked() {
	e.groupDepth++
}

func (e *Engine) endGroupLocked(name string) {
	if e.groupDepth == 0 {
		return
	}
	e.groupDepth--
	if e.groupDepth > 0 {
		return
	}

	undoHead, redoHead := e.groupUndo, e.groupRedo
	e.groupUndo, e.groupRedo = nil, nil

	now := e.now()
	if undoHead != nil {
		e.addLocked(UndoStack, newGroupNode(undoHead, name, now))
	}
	if redoHead != nil {
		e.addLocked(RedoStack, newGroupNode(redoHead, name, now))
	}
}

// SetEnabled turns recording on or off. Disabling discards all history;
// enabling again starts from empty history.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) {
	_, release := e.acquire(ctx)
	defer release()

	if !enabled {
		e.clearLocked()
	}
	if e.enabled != enabled {
		e.enabled = enabled
		e.dirty = true
	}
}

// ClearAll discards both stacks, any open group and pending redo credit.
func (e *Engine) ClearAll(ctx context.Context) {
	_, release := e.acquire(ctx)
	defer release()
	e.clearLocked()
}

func (e *Engine) clearLocked() {
	if e.undoTop != nil || e.redoTop != nil {
		e.dirty = true
	}
	e.undoTop, e.redoTop = nil, nil
	e.undoDepth, e.redoDepth = 0, 0
	e.groupDepth = 0
	e.groupUndo, e.groupRedo = nil, nil
	e.redoCredits = 0
}

// notifyLocked sends the current state to the observer and recorder.
func (e *Engine) notifyLocked() {
	s := e.stateLocked()
	e.recorder.Depth(s.UndoDepth, s.RedoDepth)
	if e.observer != nil {
		e.observer.OnHistoryChanged(s)
	}
}

func (e *Engine) stateLocked() State {
	s := State{
		Enabled:   e.enabled,
		UndoEmpty: e.undoTop == nil,
		RedoEmpty: e.redoTop == nil,
		UndoDepth: e.undoDepth,
		RedoDepth: e.redoDepth,
	}
	if e.undoTop != nil {
		s.UndoLabel = e.undoTop.label()
	}
	if e.redoTop != nil {
		s.RedoLabel = e.redoTop.label()
	}
	return s
}

// State returns a snapshot of the engine's visible state.
func (e *Engine) State(ctx context.Context) State {
	_, release := e.acquire(ctx)
	defer release()
	return e.stateLocked()
}

// CanUndo returns true if undo is available.
func (e *Engine) CanUndo(ctx context.Context) bool {
	return !e.State(ctx).UndoEmpty
}

// CanRedo returns true if redo is available.
func (e *Engine) CanRedo(ctx context.Context) bool {
	return !e.State(ctx).RedoEmpty
}

// UndoCount returns the number of entries on the undo stack.
func (e *Engine) UndoCount(ctx context.Context) int {
	return e.State(ctx).UndoDepth
}

// RedoCount returns the number of entries on the redo stack.
func (e *Engine) RedoCount(ctx context.Context) int {
	return e.State(ctx).RedoDepth
}

// IsEnabled reports whether recording is on.
func (e *Engine) IsEnabled(ctx context.Context) bool {
	return e.State(ctx).Enabled
}

// IsGrouping returns true if a group is open.
func (e *Engine) IsGrouping(ctx context.Context) bool {
	_, release := e.acquire(ctx)
	defer release()
	return e.groupDepth > 0
}

// RedoCredits returns the number of pending redo credits.
func (e *Engine) RedoCredits(ctx context.Context) int {
	_, release := e.acquire(ctx)
	defer release()
	return e.redoCredits
}
