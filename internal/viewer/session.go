package viewer

import (
	"context"
	"errors"
	"slices"
	"strings"
	"unicode"

	"github.com/dshills/revview/internal/affinity"
	"github.com/dshills/revview/internal/event"
	"github.com/dshills/revview/internal/event/events"
	"github.com/dshills/revview/internal/event/topic"
	"github.com/dshills/revview/internal/history"
	"github.com/dshills/revview/internal/invoke"
	"github.com/dshills/revview/internal/logging"
)

// DefaultTabWidth is the indent width and tab stop used when none is set.
const DefaultTabWidth = 4

// Publisher receives document events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Session applies reversible edits to the viewed document.
//
// Every edit runs on the history loop: the document is changed and the
// command that reverses it is recorded in the same task, so edits and
// replays are strictly ordered. Methods may be called from any goroutine
// and return the Completion of the posted task.
type Session struct {
	hist     *history.Affine
	view     *View
	scripts  *Scripts
	sink     history.StatusSink
	pub      Publisher
	logger   *logging.Logger
	tabWidth int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithScripts sets the Lua script host for actions 1-9.
func WithScripts(s *Scripts) SessionOption {
	return func(sess *Session) {
		sess.scripts = s
	}
}

// WithSink sets where status messages and edit failures are reported.
func WithSink(s history.StatusSink) SessionOption {
	return func(sess *Session) {
		if s != nil {
			sess.sink = s
		}
	}
}

// WithPublisher sets the document event publisher.
func WithPublisher(p Publisher) SessionOption {
	return func(sess *Session) {
		sess.pub = p
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *logging.Logger) SessionOption {
	return func(sess *Session) {
		if l != nil {
			sess.logger = l
		}
	}
}

// WithTabWidth sets the indent width.
func WithTabWidth(n int) SessionOption {
	return func(sess *Session) {
		if n > 0 {
			sess.tabWidth = n
		}
	}
}

// NewSession creates a session editing the document shown in view.
func NewSession(hist *history.Affine, view *View, opts ...SessionOption) *Session {
	s := &Session{
		hist:     hist,
		view:     view,
		logger:   logging.Null(),
		tabWidth: DefaultTabWidth,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = history.NewLogSink(s.logger)
	}
	s.logger = s.logger.WithComponent("viewer")
	return s
}

// View returns the session's view.
func (s *Session) View() *View {
	return s.view
}

// History returns the history the session records into.
func (s *Session) History() *history.Affine {
	return s.hist
}

// Scripts returns the script host, or nil.
func (s *Session) Scripts() *Scripts {
	return s.scripts
}

// Undo reverts the most recent edit.
func (s *Session) Undo(ctx context.Context) *affinity.Completion {
	return s.hist.Undo(ctx)
}

// Redo re-applies the most recently undone edit.
func (s *Session) Redo(ctx context.Context) *affinity.Completion {
	return s.hist.Redo(ctx)
}

// DeleteLine removes the cursor line.
func (s *Session) DeleteLine(ctx context.Context) *affinity.Completion {
	return s.edit(ctx, func(ctx context.Context, doc *Document, line int) error {
		if doc.LineCount() == 1 {
			return s.setLine(ctx, "Delete Line", doc, line, "")
		}
		text := doc.Line(line)
		if err := doc.DeleteLine(line); err != nil {
			return err
		}
		s.record(ctx, "Delete Line", line,
			invoke.MustMethod(doc, "InsertLine", line, text),
			invoke.MustMethod(doc, "DeleteLine", line))
		s.view.MoveTo(line)
		return nil
	})
}

// OpenLine inserts an empty line below the cursor and moves onto it.
func (s *Session) OpenLine(ctx context.Context) *affinity.Completion {
	return s.edit(ctx, func(ctx context.Context, doc *Document, line int) error {
		at := line + 1
		if err := doc.InsertLine(at, ""); err != nil {
			return err
		}
		s.record(ctx, "Open Line", at,
			invoke.MustMethod(doc, "DeleteLine", at),
			invoke.MustMethod(doc, "InsertLine", at, ""))
		s.view.MoveTo(at)
		return nil
	})
}

// ToggleCase swaps the case of every letter on the cursor line.
func (s *Session) ToggleCase(ctx context.Context) *affinity.Completion {
	return s.edit(ctx, func(ctx context.Context, doc *Document, line int) error {
		return s.setLine(ctx, "Toggle Case", doc, line, toggleCase(doc.Line(line)))
	})
}

// JoinLines appends the next line to the cursor line as one history entry.
func (s *Session) JoinLines(ctx context.Context) *affinity.Completion {
	return s.grouped(ctx, "Join Lines", func(ctx context.Context, doc *Document, line int) error {
		if line+1 >= doc.LineCount() {
			s.sink.Report("no line to join")
			return nil
		}
		first, second := doc.Line(line), strings.TrimLeft(doc.Line(line+1), " \t")
		joined := first
		if first != "" && second != "" {
			joined += " "
		}
		joined += second

		if err := s.setLine(ctx, "Join Lines", doc, line, joined); err != nil {
			return err
		}
		next := doc.Line(line + 1)
		if err := doc.DeleteLine(line + 1); err != nil {
			return err
		}
		s.record(ctx, "Join Lines", line,
			invoke.MustMethod(doc, "InsertLine", line+1, next),
			invoke.MustMethod(doc, "DeleteLine", line+1))
		return nil
	})
}

// IndentParagraph indents every line of the paragraph around the cursor
// as one history entry.
func (s *Session) IndentParagraph(ctx context.Context) *affinity.Completion {
	return s.grouped(ctx, "Indent Paragraph", func(ctx context.Context, doc *Document, line int) error {
		first, last, ok := paragraph(doc, line)
		if !ok {
			s.sink.Report("no paragraph at cursor")
			return nil
		}
		indent := strings.Repeat(" ", s.tabWidth)
		for i := first; i <= last; i++ {
			if err := s.setLine(ctx, "Indent Paragraph", doc, i, indent+doc.Line(i)); err != nil {
				return err
			}
		}
		s.view.MoveTo(line)
		return nil
	})
}

// RunScript runs the Lua action in slot on the cursor line. Whatever the
// action changes is recorded as one history entry; redo runs it again.
func (s *Session) RunScript(ctx context.Context, slot int) *affinity.Completion {
	return s.edit(ctx, func(ctx context.Context, doc *Document, line int) error {
		if s.scripts == nil {
			return ErrNoScript
		}
		action, err := s.scripts.Action(slot, line, doc)
		if err != nil {
			return err
		}

		before := doc.Lines()
		if _, err := invoke.Call(ctx, action); err != nil {
			if restoreErr := doc.SetLines(before); restoreErr != nil {
				err = errors.Join(err, restoreErr)
			}
			return err
		}
		if slices.Equal(before, doc.Lines()) {
			return nil
		}
		s.record(ctx, action.Name(), line, invoke.MustMethod(doc, "SetLines", before), action)
		s.view.MoveTo(line)
		return nil
	})
}

// Reload replaces the document with a fresh copy read from path after an
// external change. The old document is retired; history is cleared when
// anything in it still refers to the old document.
func (s *Session) Reload(ctx context.Context) *affinity.Completion {
	return s.hist.Run(ctx, func(ctx context.Context) error {
		old := s.view.Document()
		if old == nil || old.Path() == "" {
			return nil
		}
		doc, err := OpenDocument(old.Path())
		if err != nil {
			s.sink.ReportError(err)
			return err
		}
		old.Retire()

		engine := s.hist.Engine()
		cleared := engine.References(ctx, old)
		if cleared {
			s.hist.ClearAll(ctx)
		}
		s.view.SetDocument(doc)
		s.logger.Info("reloaded %s (history cleared: %v)", doc.Path(), cleared)
		s.sink.Report("reloaded " + doc.Name())

		retired := publish(ctx, s, events.TopicDocumentRetired, events.DocumentRetired{Path: old.Path(), HistoryCleared: cleared}, "")
		publish(ctx, s, events.TopicDocumentOpened, events.DocumentOpened{Path: doc.Path(), Lines: doc.LineCount()}, retired)
		return nil
	})
}

type editFunc func(ctx context.Context, doc *Document, line int) error

// edit runs fn on the loop with the current document and cursor line.
// Failures are reported to the sink and carried by the Completion.
func (s *Session) edit(ctx context.Context, fn editFunc) *affinity.Completion {
	return s.hist.Run(ctx, func(ctx context.Context) error {
		return s.apply(ctx, fn)
	})
}

// grouped is edit inside a transaction, so every command fn records
// becomes one history entry named name.
func (s *Session) grouped(ctx context.Context, name string, fn editFunc) *affinity.Completion {
	return s.hist.Transaction(ctx, name, func(ctx context.Context) error {
		return s.apply(ctx, fn)
	})
}

func (s *Session) apply(ctx context.Context, fn editFunc) error {
	doc, line := s.view.Document(), s.view.Cursor()
	if doc == nil {
		return nil
	}
	if err := fn(ctx, doc, line); err != nil {
		s.sink.ReportError(err)
		return err
	}
	return nil
}

func (s *Session) setLine(ctx context.Context, name string, doc *Document, line int, text string) error {
	old := doc.Line(line)
	if old == text {
		return nil
	}
	if err := doc.SetLine(line, text); err != nil {
		return err
	}
	s.record(ctx, name, line,
		invoke.MustMethod(doc, "SetLine", line, old),
		invoke.MustMethod(doc, "SetLine", line, text))
	return nil
}

// record adds the command reversing an edit at line. Replays move the
// cursor back to line and redraw the view.
func (s *Session) record(ctx context.Context, name string, line int, action, inverse invoke.Invocable) {
	cmd := history.NewCommand(name, action, inverse).
		WithPost(invoke.MustMethod(s.view, "MoveTo", line)).
		WithRedraw(s.view)
	s.hist.AddUndo(ctx, cmd)
	s.view.InvalidateFrom(line)

	doc := s.view.Document()
	publish(ctx, s, events.TopicDocumentEdited, events.DocumentEdited{Path: doc.Path(), Edit: name, Line: line}, "")
}

// publish sends payload on t, caused by the event with id causation if
// non-empty, and returns the new event's id.
func publish[T any](ctx context.Context, s *Session, t topic.Topic, payload T, causation string) string {
	if s.pub == nil {
		return ""
	}
	ev := event.NewEvent(t, payload, "viewer").WithCausation(causation)
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.Debug("publish %s: %v", t, err)
	}
	return ev.Metadata.ID
}

// paragraph returns the run of non-blank lines around line.
func paragraph(doc *Document, line int) (first, last int, ok bool) {
	blank := func(i int) bool { return strings.TrimSpace(doc.Line(i)) == "" }
	if blank(line) {
		return 0, 0, false
	}
	first, last = line, line
	for first > 0 && !blank(first-1) {
		first--
	}
	for last+1 < doc.LineCount() && !blank(last+1) {
		last++
	}
	return first, last, true
}

func toggleCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsUpper(r):
			return unicode.ToLower(r)
		case unicode.IsLower(r):
			return unicode.ToUpper(r)
		default:
			return r
		}
	}, s)
}
