package history

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/revview/internal/invoke"
)

// replayTop pops the top node of stack and replays it.
func (e *Engine) replayTop(ctx context.Context, stack Stack) {
	var n *node
	switch stack {
	case UndoStack:
		n, e.undoTop = pop(e.undoTop)
		if n != nil {
			e.undoDepth--
		}
	case RedoStack:
		n, e.redoTop = pop(e.redoTop)
		if n != nil {
			e.redoDepth--
		}
	}
	if n == nil {
		return
	}
	e.dirty = true

	// The undo entry pushed by this replay must not discard the rest of
	// the redo chain.
	if stack == RedoStack {
		e.redoCredits++
	}

	ctx, span := e.tracer.Start(ctx, "history."+stack.String(),
		trace.WithAttributes(
			attribute.String("history.entry", n.label()),
			attribute.String("history.id", n.id.String()),
			attribute.Int("history.steps", n.size()),
		))
	defer span.End()

	e.logger.Debug("%s %q", stack, n.label())
	if failed := e.replayNode(ctx, stack, n); failed > 0 {
		span.SetStatus(codes.Error, "replay failed")
		span.SetAttributes(attribute.Int("history.failures", failed))
	}
}

// replayNode replays n, which was popped from stack, and moves it to the
// opposite stack when it has an inverse. It returns the number of failed
// steps. Failures are reported and never stop sibling nodes.
func (e *Engine) replayNode(ctx context.Context, from Stack, n *node) int {
	switch n.payload.kind {
	case entryGroup:
		return e.replayGroup(ctx, from, n)
	case entryLeaf:
		if err := e.replayLeaf(ctx, n); err != nil {
			e.fail(from, n, err)
			return 1
		}
		e.recorder.Replayed(from, nil)
		if n.inverse.kind != entryNone {
			n.swap()
			e.addLocked(from.opposite(), n)
		}
		return 0
	default:
		err := &InvalidEntryError{Name: n.label(), ID: n.id}
		e.fail(from, n, err)
		return 1
	}
}

// replayGroup replays the children of a group node most recent first
// inside an implicit group, so their inverses fold into one node.
func (e *Engine) replayGroup(ctx context.Context, from Stack, n *node) int {
	failed := 0
	e.beginGroupLocked()
	for c := n.payload.group; c != nil; {
		next := c.next
		c.next = nil
		failed += e.replayNode(ctx, from, c)
		c = next
	}
	n.payload.group = nil
	e.endGroupLocked(n.name)
	return failed
}

// replayLeaf runs the action, then the post action, then invalidates the
// redraw target over the union of its bounds before and after.
func (e *Engine) replayLeaf(ctx context.Context, n *node) error {
	var before Rect
	if n.redraw != nil {
		before = n.redraw.Bounds()
	}

	if _, err := invoke.Call(ctx, n.payload.leaf); err != nil {
		return err
	}
	if n.post != nil {
		if _, err := invoke.Call(ctx, n.post); err != nil {
			return err
		}
	}

	if n.redraw != nil {
		after := n.redraw.Bounds()
		if dirty := before.Union(after).Grow(e.padding); !dirty.Empty() {
			n.redraw.Invalidate(dirty)
		}
	}
	return nil
}

func (e *Engine) fail(from Stack, n *node, err error) {
	e.recorder.Replayed(from, err)
	e.sink.ReportError(&ReplayError{
		Op:    from.String(),
		Entry: n.label(),
		ID:    n.id,
		Err:   err,
	})
}
