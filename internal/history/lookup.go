package history

import (
	"context"

	"github.com/dshills/revview/internal/invoke"
)

// Role names the part of a history entry that matched a lookup.
type Role int

const (
	// RolePayload is the invocable the next replay will run.
	RolePayload Role = iota
	// RoleInverse is the invocable kept for the opposite stack.
	RoleInverse
	// RolePost is the post action.
	RolePost
	// RoleRedraw is the redraw target.
	RoleRedraw
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RolePayload:
		return "payload"
	case RoleInverse:
		return "inverse"
	case RolePost:
		return "post"
	case RoleRedraw:
		return "redraw"
	default:
		return "unknown"
	}
}

// Match describes where a lookup token was found.
type Match struct {
	Stack Stack
	Role  Role
	Name  string // presentation name of the entry that matched
	// Pending is true when the match is in a group that has not been closed.
	Pending bool
}

// Lookup reports whether anything in history refers to token. It searches
// the undo stack, then the redo stack, then any open group, most recent
// entry first, descending into groups. An invocable matches when its
// Target equals token or it implements invoke.Referencer and claims it.
// A redraw target matches when it equals token.
func (e *Engine) Lookup(ctx context.Context, token any) (Match, bool) {
	_, release := e.acquire(ctx)
	defer release()

	if token == nil {
		return Match{}, false
	}

	lists := []struct {
		head    *node
		stack   Stack
		pending bool
	}{
		{e.undoTop, UndoStack, false},
		{e.redoTop, RedoStack, false},
		{e.groupUndo, UndoStack, true},
		{e.groupRedo, RedoStack, true},
	}
	for _, l := range lists {
		if m, ok := lookupList(l.head, token); ok {
			m.Stack = l.stack
			m.Pending = l.pending
			return m, true
		}
	}
	return Match{}, false
}

// References is shorthand for Lookup when only the answer matters.
func (e *Engine) References(ctx context.Context, token any) bool {
	_, ok := e.Lookup(ctx, token)
	return ok
}

func lookupList(head *node, token any) (Match, bool) {
	for n := head; n != nil; n = n.next {
		if m, ok := lookupNode(n, token); ok {
			return m, true
		}
	}
	return Match{}, false
}

func lookupNode(n *node, token any) (Match, bool) {
	for _, c := range []struct {
		en   entry
		role Role
	}{
		{n.payload, RolePayload},
		{n.inverse, RoleInverse},
	} {
		switch c.en.kind {
		case entryLeaf:
			if invoke.Refers(c.en.leaf, token) {
				return Match{Role: c.role, Name: n.label()}, true
			}
		case entryGroup:
			if m, ok := lookupList(c.en.group, token); ok {
				return m, true
			}
		}
	}
	if n.post != nil && invoke.Refers(n.post, token) {
		return Match{Role: RolePost, Name: n.label()}, true
	}
	if n.redraw != nil && invoke.SameToken(n.redraw, token) {
		return Match{Role: RoleRedraw, Name: n.label()}, true
	}
	return Match{}, false
}
