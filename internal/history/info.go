package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntryInfo describes one history entry for display.
type EntryInfo struct {
	ID       uuid.UUID
	Name     string
	Recorded time.Time
	Steps    int // number of commands folded into the entry
}

// Entries lists the entries of stack, most recent first.
func (e *Engine) Entries(ctx context.Context, stack Stack) []EntryInfo {
	_, release := e.acquire(ctx)
	defer release()

	head, depth := e.undoTop, e.undoDepth
	if stack == RedoStack {
		head, depth = e.redoTop, e.redoDepth
	}

	infos := make([]EntryInfo, 0, depth)
	for n := head; n != nil; n = n.next {
		infos = append(infos, EntryInfo{
			ID:       n.id,
			Name:     n.label(),
			Recorded: n.recorded,
			Steps:    n.size(),
		})
	}
	return infos
}

// UndoLabel returns the presentation name of the next undo entry, or ""
// when there is none.
func (e *Engine) UndoLabel(ctx context.Context) string {
	return e.State(ctx).UndoLabel
}

// RedoLabel returns the presentation name of the next redo entry, or ""
// when there is none.
func (e *Engine) RedoLabel(ctx context.Context) string {
	return e.State(ctx).RedoLabel
}
