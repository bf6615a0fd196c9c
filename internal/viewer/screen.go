package viewer

import (
	"context"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/revview/internal/affinity"
	"github.com/dshills/revview/internal/logging"
)

var (
	styleText   = tcell.StyleDefault
	styleCursor = tcell.StyleDefault.Reverse(true)
	styleStatus = tcell.StyleDefault.Background(tcell.ColorNavy).Foreground(tcell.ColorWhite)
	styleError  = tcell.StyleDefault.Background(tcell.ColorMaroon).Foreground(tcell.ColorWhite)
)

// Screen draws a session's view on a terminal and turns key presses into
// session operations.
type Screen struct {
	screen  tcell.Screen
	session *Session
	view    *View
	logger  *logging.Logger

	onLoop   bool
	tabWidth int
}

// ScreenOption configures a Screen.
type ScreenOption func(*Screen)

// WithKeysOnLoop makes key handling run on the history loop instead of the
// screen goroutine.
func WithKeysOnLoop(on bool) ScreenOption {
	return func(s *Screen) {
		s.onLoop = on
	}
}

// WithScreenLogger sets the logger.
func WithScreenLogger(l *logging.Logger) ScreenOption {
	return func(s *Screen) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScreenTabWidth sets the tab stop used when drawing.
func WithScreenTabWidth(n int) ScreenOption {
	return func(s *Screen) {
		if n > 0 {
			s.tabWidth = n
		}
	}
}

// NewScreen creates a screen for session. Pass tcell.NewScreen's result for
// a terminal, or a simulation screen in tests.
func NewScreen(screen tcell.Screen, session *Session, opts ...ScreenOption) *Screen {
	s := &Screen{
		screen:   screen,
		session:  session,
		view:     session.View(),
		logger:   logging.Null(),
		onLoop:   true,
		tabWidth: DefaultTabWidth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("screen")
	return s
}

// Init initializes the terminal and sizes the view to it.
func (s *Screen) Init() error {
	if err := s.screen.Init(); err != nil {
		return err
	}
	s.screen.HideCursor()
	s.view.SetSize(s.screen.Size())
	return nil
}

// Fini restores the terminal.
func (s *Screen) Fini() {
	s.screen.Fini()
}

// Run draws and handles input until a quit key is pressed or ctx is done.
// Init must have been called.
func (s *Screen) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			ev := s.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	s.Draw()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if _, quit := s.HandleKey(ctx, ev); quit {
					return nil
				}
			case *tcell.EventResize:
				w, h := ev.Size()
				s.logger.Debug("resize %dx%d", w, h)
				s.view.SetSize(w, h)
				s.screen.Sync()
			}

		case <-s.view.Wake():
			s.Draw()
		}
	}
}

// HandleKey runs the operation bound to ev. It returns the Completion of
// any posted edit, and quit when the key asks to leave.
func (s *Screen) HandleKey(ctx context.Context, ev *tcell.EventKey) (c *affinity.Completion, quit bool) {
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		return nil, true
	case tcell.KeyCtrlR:
		return s.dispatch(ctx, s.session.Redo), false
	case tcell.KeyDown:
		s.view.MoveBy(1)
		return nil, false
	case tcell.KeyUp:
		s.view.MoveBy(-1)
		return nil, false
	case tcell.KeyPgDn:
		s.view.MoveBy(s.view.TextHeight())
		return nil, false
	case tcell.KeyPgUp:
		s.view.MoveBy(-s.view.TextHeight())
		return nil, false
	case tcell.KeyRune:
	default:
		return nil, false
	}

	r := ev.Rune()
	if ev.Modifiers()&tcell.ModCtrl != 0 {
		if r == 'r' || r == 'R' {
			return s.dispatch(ctx, s.session.Redo), false
		}
		return nil, false
	}

	switch r {
	case 'q':
		return nil, true
	case 'j':
		s.view.MoveBy(1)
	case 'k':
		s.view.MoveBy(-1)
	case 'g':
		s.view.MoveTo(0)
	case 'G':
		if doc := s.view.Document(); doc != nil {
			s.view.MoveTo(doc.LineCount() - 1)
		}
	case 'd':
		return s.dispatch(ctx, s.session.DeleteLine), false
	case 'o':
		return s.dispatch(ctx, s.session.OpenLine), false
	case '~':
		return s.dispatch(ctx, s.session.ToggleCase), false
	case 'J':
		return s.dispatch(ctx, s.session.JoinLines), false
	case '>':
		return s.dispatch(ctx, s.session.IndentParagraph), false
	case 'u':
		return s.dispatch(ctx, s.session.Undo), false
	case 'U':
		return s.dispatch(ctx, s.session.Redo), false
	default:
		if r >= '1' && r <= '9' {
			slot := int(r - '0')
			return s.dispatch(ctx, func(ctx context.Context) *affinity.Completion {
				return s.session.RunScript(ctx, slot)
			}), false
		}
	}
	return nil, false
}

// dispatch runs op from the loop when keys are handled there. Otherwise op
// is called here and posts its own work.
func (s *Screen) dispatch(ctx context.Context, op func(ctx context.Context) *affinity.Completion) *affinity.Completion {
	if !s.onLoop {
		return op(ctx)
	}
	return s.session.History().Run(ctx, func(ctx context.Context) error {
		return op(ctx).Err()
	})
}

// Draw redraws the dirty rows and the status line.
func (s *Screen) Draw() {
	dirty := s.view.TakeDirty()
	width, height := s.view.Size()
	textHeight := s.view.TextHeight()
	doc := s.view.Document()
	top, cursor := s.view.Top(), s.view.Cursor()

	for y := dirty.Y; y < dirty.Y+dirty.H && y < textHeight; y++ {
		line := top + y
		style := styleText
		if line == cursor {
			style = styleCursor
		}
		text := "~"
		if doc != nil && line < doc.LineCount() {
			text = expandTabs(doc.Line(line), s.tabWidth)
		}
		s.drawRow(y, width, text, style)
	}

	msg, isErr := s.view.Status()
	style := styleStatus
	if isErr && msg != "" {
		style = styleError
	}
	s.drawRow(height-1, width, s.view.StatusLine(), style)
	s.screen.Show()
}

func (s *Screen) drawRow(y, width int, text string, style tcell.Style) {
	x := 0
	for _, r := range text {
		if x >= width {
			break
		}
		s.screen.SetContent(x, y, r, nil, style)
		x++
	}
	for ; x < width; x++ {
		s.screen.SetContent(x, y, ' ', nil, style)
	}
}

func expandTabs(s string, width int) string {
	if !strings.ContainsRune(s, '\t') {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := width - col%width
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}
