package events

import "github.com/dshills/revview/internal/event/topic"

// Document event topics.
const (
	// TopicDocumentOpened is published when a document is loaded.
	TopicDocumentOpened topic.Topic = "document.opened"

	// TopicDocumentRetired is published when a document is replaced after
	// an external change and history referring to it is dropped.
	TopicDocumentRetired topic.Topic = "document.retired"

	// TopicDocumentEdited is published after an edit is applied.
	TopicDocumentEdited topic.Topic = "document.edited"
)

// DocumentOpened describes a loaded document.
type DocumentOpened struct {
	Path  string
	Lines int
}

// DocumentRetired describes a document that was replaced.
type DocumentRetired struct {
	Path string

	// HistoryCleared is true when history referenced the old document.
	HistoryCleared bool
}

// DocumentEdited describes an applied edit.
type DocumentEdited struct {
	Path string

	// Edit is the presentation name of the edit.
	Edit string

	// Line is the first affected line, zero-based.
	Line int
}
