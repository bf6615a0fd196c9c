package events

import "github.com/dshills/revview/internal/event/topic"

// History event topics.
const (
	// TopicHistoryChanged is published after every operation that changed
	// undo/redo state.
	TopicHistoryChanged topic.Topic = "history.changed"

	// TopicHistoryStatus is published for status messages and replay failures.
	TopicHistoryStatus topic.Topic = "history.status"
)

// HistoryChanged carries what undo/redo controls should show.
type HistoryChanged struct {
	Enabled   bool
	UndoEmpty bool
	RedoEmpty bool

	// UndoLabel and RedoLabel are the presentation names of the next
	// entries, or empty.
	UndoLabel string
	RedoLabel string

	UndoDepth int
	RedoDepth int
}

// HistoryStatus is a status message or a failure reported by the engine.
type HistoryStatus struct {
	// Message is the human-readable text.
	Message string

	// Err is set when the status reports a failure.
	Err error
}

// IsError reports whether the status is a failure.
func (s HistoryStatus) IsError() bool {
	return s.Err != nil
}
