package viewer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/revview/internal/history"
)

func numbered(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return lines
}

func TestView_MoveToClampsAndScrolls(t *testing.T) {
	v := NewView(NewDocument("", numbered(30)), 20, 6)
	assert.Equal(t, 5, v.TextHeight())

	v.MoveTo(-3)
	assert.Equal(t, 0, v.Cursor())

	v.MoveTo(7)
	assert.Equal(t, 7, v.Cursor())
	assert.Equal(t, 3, v.Top())

	v.MoveTo(100)
	assert.Equal(t, 29, v.Cursor())
	assert.Equal(t, 25, v.Top())

	v.MoveBy(-28)
	assert.Equal(t, 1, v.Cursor())
	assert.Equal(t, 1, v.Top())
}

func TestView_Bounds(t *testing.T) {
	v := NewView(NewDocument("", numbered(30)), 20, 6)
	assert.Equal(t, history.Rect{X: 0, Y: 0, W: 20, H: 5}, v.Bounds())

	v.MoveTo(3)
	assert.Equal(t, history.Rect{X: 0, Y: 3, W: 20, H: 2}, v.Bounds())
}

func TestView_Dirty(t *testing.T) {
	v := NewView(NewDocument("", numbered(30)), 20, 6)
	assert.Equal(t, history.Rect{W: 20, H: 6}, v.TakeDirty())
	assert.True(t, v.TakeDirty().Empty())

	select {
	case <-v.Wake():
	default:
		t.Fatal("invalidation should wake the screen")
	}

	v.Invalidate(history.Rect{X: -2, Y: 4, W: 50, H: 9})
	assert.Equal(t, history.Rect{X: 0, Y: 4, W: 20, H: 2}, v.TakeDirty())

	v.Invalidate(history.Rect{X: 30, Y: 30, W: 1, H: 1})
	assert.True(t, v.TakeDirty().Empty(), "off-screen regions are dropped")

	v.MoveTo(2)
	assert.Equal(t, history.Rect{X: 0, Y: 0, W: 20, H: 3}, v.TakeDirty())

	v.InvalidateFrom(3)
	assert.Equal(t, history.Rect{X: 0, Y: 3, W: 20, H: 2}, v.TakeDirty())
}

func TestView_StatusLine(t *testing.T) {
	v := NewView(NewDocument("/tmp/notes.txt", numbered(3)), 80, 10)
	assert.Equal(t, "notes.txt 1/3 | Undo: - | Redo: -", v.StatusLine())

	v.SetHistory(history.State{Enabled: true, UndoLabel: "Join Lines", RedoEmpty: true})
	v.SetStatus("reloaded", false)
	v.MoveTo(1)
	assert.Equal(t, "notes.txt 2/3 | Undo: Join Lines | Redo: - | reloaded", v.StatusLine())

	v.SetHistory(history.State{})
	assert.Equal(t, "notes.txt 2/3 | history off | reloaded", v.StatusLine())

	msg, isErr := v.Status()
	assert.Equal(t, "reloaded", msg)
	assert.False(t, isErr)
}

func TestView_SetDocumentResetsCursor(t *testing.T) {
	v := NewView(NewDocument("", numbered(30)), 20, 6)
	v.MoveTo(20)
	v.TakeDirty()

	v.SetDocument(NewDocument("", numbered(2)))
	assert.Equal(t, 0, v.Cursor())
	assert.Equal(t, 0, v.Top())
	assert.Equal(t, history.Rect{W: 20, H: 6}, v.TakeDirty())
}
