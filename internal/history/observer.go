package history

import (
	"github.com/dshills/revview/internal/logging"
)

// State is a snapshot of what undo/redo controls should show.
type State struct {
	Enabled   bool
	UndoEmpty bool
	RedoEmpty bool
	UndoLabel string
	RedoLabel string
	UndoDepth int
	RedoDepth int
}

// Observer is notified after every operation that changed history.
//
// Notification happens while the engine lock is held. Observers must not
// call back into the engine with a context that does not carry the lock.
type Observer interface {
	OnHistoryChanged(s State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s State)

// OnHistoryChanged calls f.
func (f ObserverFunc) OnHistoryChanged(s State) { f(s) }

// StatusSink receives status messages and replay failures.
type StatusSink interface {
	Report(msg string)
	ReportError(err error)
}

// LogSink is a StatusSink that writes to a logger.
type LogSink struct {
	Logger *logging.Logger
}

// NewLogSink creates a sink writing to logger, or to a default stderr
// logger when logger is nil.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &LogSink{Logger: logger.WithComponent("history")}
}

// Report logs msg at info level.
func (s *LogSink) Report(msg string) {
	s.Logger.Info("%s", msg)
}

// ReportError logs err at warn level.
func (s *LogSink) ReportError(err error) {
	s.Logger.Warn("%v", err)
}

// Recorder receives engine metrics.
type Recorder interface {
	// Recorded is called when a node is pushed onto a stack at top level.
	Recorded(stack Stack)

	// Replayed is called after each command replay; err is nil on success.
	Replayed(stack Stack, err error)

	// Depth is called with the stack sizes whenever observers are notified.
	Depth(undo, redo int)
}

type nopRecorder struct{}

func (nopRecorder) Recorded(Stack) {}
func (nopRecorder) Replayed(Stack, error) {}
func (nopRecorder) Depth(int, int) {}
