package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/revview/internal/invoke"
)

// entryKind tags the payload of a node.
type entryKind uint8

const (
	entryNone entryKind = iota
	entryLeaf
	entryGroup
)

// entry is either a single invocable or the head of a nested node list.
type entry struct {
	kind  entryKind
	leaf  invoke.Invocable
	group *node
}

func leafEntry(inv invoke.Invocable) entry {
	if inv == nil {
		return entry{}
	}
	return entry{kind: entryLeaf, leaf: inv}
}

func groupEntry(head *node) entry {
	return entry{kind: entryGroup, group: head}
}

// node is a link in an undo or redo stack. The engine owns every node
// exclusively; a node moves between stacks only by swap and re-insertion.
type node struct {
	id       uuid.UUID
	payload  entry
	inverse  entry
	post     invoke.Invocable
	redraw   RedrawTarget
	name     string
	recorded time.Time
	next     *node
}

func newLeafNode(cmd Command, now time.Time) *node {
	return &node{
		id:       uuid.New(),
		payload:  leafEntry(cmd.Action),
		inverse:  leafEntry(cmd.Inverse),
		post:     cmd.Post,
		redraw:   cmd.Redraw,
		name:     cmd.Name,
		recorded: now,
	}
}

func newGroupNode(head *node, name string, now time.Time) *node {
	return &node{
		id:       uuid.New(),
		payload:  groupEntry(head),
		name:     name,
		recorded: now,
	}
}

// swap exchanges payload and inverse, turning an undo node into a redo
// node or the other way round.
func (n *node) swap() {
	n.payload, n.inverse = n.inverse, n.payload
}

// label returns the presentation name of the node.
func (n *node) label() string {
	if n.name != "" {
		return n.name
	}
	switch n.payload.kind {
	case entryLeaf:
		if name := n.payload.leaf.Name(); name != "" {
			return name
		}
	case entryGroup:
		if n.payload.group != nil {
			return n.payload.group.label()
		}
	}
	return unknownName
}

// size returns the number of leaf commands under the node.
func (n *node) size() int {
	if n.payload.kind != entryGroup {
		return 1
	}
	total := 0
	for c := n.payload.group; c != nil; c = c.next {
		total += c.size()
	}
	return total
}

// push links n on top of head and returns the new head.
func push(head, n *node) *node {
	n.next = head
	return n
}

// pop unlinks the top of head and returns it with the new head.
func pop(head *node) (top, rest *node) {
	if head == nil {
		return nil, nil
	}
	rest = head.next
	head.next = nil
	return head, rest
}
