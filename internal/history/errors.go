package history

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidEntry indicates a history node whose payload is neither a
// command nor a group.
var ErrInvalidEntry = errors.New("invalid history entry")

// InvalidEntryError describes a corrupt history node that was skipped.
type InvalidEntryError struct {
	Name string
	ID   uuid.UUID
}

func (e *InvalidEntryError) Error() string {
	return fmt.Sprintf("%v: %q (%s)", ErrInvalidEntry, e.Name, e.ID)
}

// Is matches ErrInvalidEntry.
func (e *InvalidEntryError) Is(target error) bool {
	return target == ErrInvalidEntry
}

// ReplayError wraps a failure that occurred while replaying a history node.
type ReplayError struct {
	Op    string    // "undo" or "redo"
	Entry string    // Presentation name of the node
	ID    uuid.UUID // Node id
	Err   error     // Underlying failure
}

func (e *ReplayError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Entry, e.Err)
}

func (e *ReplayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
