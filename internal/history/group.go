package history

import "context"

// GroupScope closes a group opened by Engine.GroupScope.
// Usage:
//
//	func joinLines(ctx context.Context, e *history.Engine) {
//	    defer e.GroupScope(ctx, "Join Lines").End()
//	    // ... several AddUndo calls ...
//	}
type GroupScope struct {
	engine *Engine
	ctx    context.Context
	name   string
	mark   groupMark
	active bool
}

// groupMark is the grouping state just before a nested level opened.
// Buffers are pushed at the head, so restoring the heads drops exactly
// the entries recorded since.
type groupMark struct {
	depth      int
	undo, redo *node
}

func (e *Engine) markLocked() groupMark {
	return groupMark{depth: e.groupDepth, undo: e.groupUndo, redo: e.groupRedo}
}

func (e *Engine) rollbackLocked(m groupMark) {
	if e.groupDepth > m.depth {
		e.logger.Debug("dropping group level %d", e.groupDepth)
	}
	e.groupDepth = m.depth
	e.groupUndo, e.groupRedo = m.undo, m.redo
}

// GroupScope opens a group and returns a scope that closes it.
func (e *Engine) GroupScope(ctx context.Context, name string) *GroupScope {
	_, release := e.acquire(ctx)
	defer release()
	mark := e.markLocked()
	e.beginGroupLocked()
	return &GroupScope{engine: e, ctx: ctx, name: name, mark: mark, active: true}
}

// End closes the group. Only the first call has effect.
func (g *GroupScope) End() {
	if g.active {
		g.engine.EndGroup(g.ctx, g.name)
		g.active = false
	}
}

// Cancel drops the entries recorded since the scope opened and closes its
// level. An enclosing group keeps its earlier entries and stays open.
// Edits already performed are not reverted.
func (g *GroupScope) Cancel() {
	if !g.active {
		return
	}
	g.active = false
	_, release := g.engine.acquire(g.ctx)
	defer release()
	g.engine.rollbackLocked(g.mark)
}

// Transaction runs fn inside a group named name. If fn returns an error or
// panics, the entries it recorded are dropped and the grouping state is
// restored to what it was before the call; the error is returned and the
// panic propagates. Otherwise the group is closed.
// The engine lock is held for the duration and fn receives the held
// context, so the edits it records are not interleaved with other
// goroutines.
func (e *Engine) Transaction(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, release := e.acquire(ctx)
	defer release()

	mark := e.markLocked()
	e.beginGroupLocked()
	committed := false
	defer func() {
		if !committed {
			e.rollbackLocked(mark)
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	committed = true
	e.endGroupLocked(name)
	return nil
}

// Checkpoint is a position in the undo stack.
type Checkpoint struct {
	undoDepth int
}

// Checkpoint returns the current position in the undo stack.
func (e *Engine) Checkpoint(ctx context.Context) Checkpoint {
	return Checkpoint{undoDepth: e.UndoCount(ctx)}
}

// UndoTo undoes entries until the undo stack is no deeper than cp.
func (e *Engine) UndoTo(ctx context.Context, cp Checkpoint) {
	ctx, release := e.acquire(ctx)
	defer release()
	for e.undoTop != nil && e.undoDepth > cp.undoDepth {
		e.replayTop(ctx, UndoStack)
	}
}

// RedoTo redoes entries until the undo stack is as deep as cp or the redo
// stack runs out.
func (e *Engine) RedoTo(ctx context.Context, cp Checkpoint) {
	ctx, release := e.acquire(ctx)
	defer release()
	for e.redoTop != nil && e.undoDepth < cp.undoDepth {
		e.replayTop(ctx, RedoStack)
	}
}
