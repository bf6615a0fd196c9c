package viewer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/revview/internal/history"
)

// View is the visible window onto a document: scroll position, cursor,
// status line and the region waiting to be redrawn.
//
// View is the redraw target of every recorded edit. Its bounds cover the
// rows from the cursor to the bottom of the text area, which is what a
// line insert or delete at the cursor can change.
type View struct {
	mu sync.Mutex

	doc    *Document
	width  int
	height int
	top    int
	cursor int

	dirty history.Rect
	wake  chan struct{}

	status    string
	statusErr bool
	state     history.State
}

var _ history.RedrawTarget = (*View)(nil)

// NewView creates a view of doc with the given screen size.
func NewView(doc *Document, width, height int) *View {
	v := &View{
		doc:   doc,
		wake:  make(chan struct{}, 1),
		state: history.State{Enabled: true, UndoEmpty: true, RedoEmpty: true},
	}
	v.SetSize(width, height)
	return v
}

// Document returns the document being viewed.
func (v *View) Document() *Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc
}

// SetDocument replaces the document and resets the cursor.
func (v *View) SetDocument(doc *Document) {
	v.mu.Lock()
	v.doc = doc
	v.top, v.cursor = 0, 0
	v.mu.Unlock()
	v.InvalidateAll()
}

// SetSize sets the screen size. The last row is the status line.
func (v *View) SetSize(width, height int) {
	v.mu.Lock()
	v.width, v.height = max(width, 0), max(height, 1)
	v.scrollLocked()
	v.mu.Unlock()
	v.InvalidateAll()
}

// Size returns the screen size.
func (v *View) Size() (width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height
}

// TextHeight returns the number of rows available for text.
func (v *View) TextHeight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.textHeightLocked()
}

func (v *View) textHeightLocked() int {
	return max(v.height-1, 0)
}

// Top returns the first visible line.
func (v *View) Top() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.top
}

// Cursor returns the cursor line.
func (v *View) Cursor() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cursor
}

// MoveTo places the cursor on line, clamped to the document, scrolling
// when needed.
func (v *View) MoveTo(line int) {
	v.mu.Lock()
	old, oldTop := v.cursor, v.top
	v.cursor = line
	v.scrollLocked()
	moved, scrolled := v.cursor != old, v.top != oldTop
	oldRow, newRow := old-v.top, v.cursor-v.top
	w := v.width
	v.mu.Unlock()

	switch {
	case scrolled:
		v.InvalidateAll()
	case moved:
		v.Invalidate(history.Rect{X: 0, Y: oldRow, W: w, H: 1})
		v.Invalidate(history.Rect{X: 0, Y: newRow, W: w, H: 1})
	}
}

// MoveBy moves the cursor by delta lines.
func (v *View) MoveBy(delta int) {
	v.MoveTo(v.Cursor() + delta)
}

func (v *View) scrollLocked() {
	n := 1
	if v.doc != nil {
		n = v.doc.LineCount()
	}
	v.cursor = min(max(v.cursor, 0), n-1)

	h := max(v.textHeightLocked(), 1)
	if v.cursor < v.top {
		v.top = v.cursor
	}
	if v.cursor >= v.top+h {
		v.top = v.cursor - h + 1
	}
	v.top = max(v.top, 0)
}

// Bounds returns the rows from the cursor to the bottom of the text area.
func (v *View) Bounds() history.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	row := v.cursor - v.top
	h := v.textHeightLocked()
	if row < 0 || row >= h {
		return history.Rect{}
	}
	return history.Rect{X: 0, Y: row, W: v.width, H: h - row}
}

// Invalidate marks r for redraw.
func (v *View) Invalidate(r history.Rect) {
	if r.Empty() {
		return
	}
	v.mu.Lock()
	v.dirty = v.dirty.Union(r)
	v.mu.Unlock()
	v.signal()
}

// InvalidateAll marks the whole screen for redraw.
func (v *View) InvalidateAll() {
	w, h := v.Size()
	v.Invalidate(history.Rect{W: w, H: h})
}

// InvalidateFrom marks the rows showing line and everything below it.
func (v *View) InvalidateFrom(line int) {
	v.mu.Lock()
	row := max(line-v.top, 0)
	r := history.Rect{X: 0, Y: row, W: v.width, H: v.textHeightLocked() - row}
	v.mu.Unlock()
	v.Invalidate(r)
}

func (v *View) invalidateStatus() {
	w, h := v.Size()
	v.Invalidate(history.Rect{X: 0, Y: h - 1, W: w, H: 1})
}

func (v *View) signal() {
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

// Wake returns a channel that receives when something was invalidated.
func (v *View) Wake() <-chan struct{} {
	return v.wake
}

// TakeDirty returns the pending dirty region clipped to the screen and
// clears it.
func (v *View) TakeDirty() history.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	r := v.dirty
	v.dirty = history.Rect{}
	if r.Empty() {
		return r
	}
	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1, y1 := min(r.X+r.W, v.width), min(r.Y+r.H, v.height)
	if x1 <= x0 || y1 <= y0 {
		return history.Rect{}
	}
	return history.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// SetStatus sets the status message.
func (v *View) SetStatus(msg string, isErr bool) {
	v.mu.Lock()
	v.status, v.statusErr = msg, isErr
	v.mu.Unlock()
	v.invalidateStatus()
}

// Status returns the status message and whether it reports a failure.
func (v *View) Status() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status, v.statusErr
}

// SetHistory records the history state shown on the status line.
func (v *View) SetHistory(s history.State) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
	v.invalidateStatus()
}

// StatusLine renders the status line text.
func (v *View) StatusLine() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var b strings.Builder
	name, lines := "[no document]", 0
	if v.doc != nil {
		name, lines = v.doc.Name(), v.doc.LineCount()
	}
	fmt.Fprintf(&b, "%s %d/%d", name, v.cursor+1, lines)
	if !v.state.Enabled {
		b.WriteString(" | history off")
	} else {
		fmt.Fprintf(&b, " | Undo: %s | Redo: %s", label(v.state.UndoEmpty, v.state.UndoLabel),
			label(v.state.RedoEmpty, v.state.RedoLabel))
	}
	if v.status != "" {
		b.WriteString(" | ")
		b.WriteString(v.status)
	}
	return b.String()
}

func label(empty bool, name string) string {
	if empty {
		return "-"
	}
	return name
}
