package viewer

import (
	"context"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimScreen(t *testing.T, f *fixture, opts ...ScreenOption) (*Screen, tcell.SimulationScreen) {
	t.Helper()
	sim := tcell.NewSimulationScreen("UTF-8")
	s := NewScreen(sim, f.session, opts...)
	require.NoError(t, s.Init())
	sim.SetSize(30, 5)
	f.view.SetSize(30, 5)
	t.Cleanup(s.Fini)
	return s, sim
}

func row(sim tcell.SimulationScreen, y int) string {
	w, _ := sim.Size()
	var b strings.Builder
	for x := 0; x < w; x++ {
		r, _, _, _ := sim.GetContent(x, y) //nolint:staticcheck // GetContent is the simulation read-back API
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestScreen_Draw(t *testing.T) {
	f := newFixture(t, NewDocument("/tmp/a.txt", []string{"alpha", "\tbeta"}))
	s, sim := newSimScreen(t, f, WithScreenTabWidth(2))

	s.Draw()
	assert.Equal(t, "alpha", row(sim, 0))
	assert.Equal(t, "  beta", row(sim, 1))
	assert.Equal(t, "~", row(sim, 2))
	assert.Equal(t, "a.txt 1/2 | Undo: - | Redo: -", row(sim, 4))

	_, _, style, _ := sim.GetContent(0, 0) //nolint:staticcheck // GetContent is the simulation read-back API
	assert.Equal(t, styleCursor, style)
}

func TestScreen_KeysOnLoop(t *testing.T) {
	f := newFixture(t, NewDocument("", []string{"a", "b", "c"}))
	s, _ := newSimScreen(t, f)

	_, quit := s.HandleKey(f.ctx, key('j'))
	assert.False(t, quit)
	assert.Equal(t, 1, f.view.Cursor())

	c, _ := s.HandleKey(f.ctx, key('d'))
	require.NotNil(t, c)
	require.NoError(t, f.wait(t, c))
	assert.Equal(t, []string{"a", "c"}, f.lines())

	c, _ = s.HandleKey(f.ctx, key('u'))
	require.NoError(t, f.wait(t, c))
	assert.Equal(t, []string{"a", "b", "c"}, f.lines())

	c, _ = s.HandleKey(f.ctx, tcell.NewEventKey(tcell.KeyCtrlR, 0, tcell.ModCtrl))
	require.NoError(t, f.wait(t, c))
	assert.Equal(t, []string{"a", "c"}, f.lines())

	c, _ = s.HandleKey(f.ctx, key('7'))
	assert.ErrorIs(t, f.wait(t, c), ErrNoScript)

	_, quit = s.HandleKey(f.ctx, key('q'))
	assert.True(t, quit)
	_, quit = s.HandleKey(f.ctx, tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone))
	assert.True(t, quit)
}

func TestScreen_KeysOffLoop(t *testing.T) {
	f := newFixture(t, NewDocument("", []string{"ab"}))
	s, _ := newSimScreen(t, f, WithKeysOnLoop(false))

	c, _ := s.HandleKey(f.ctx, key('~'))
	require.NoError(t, f.wait(t, c))
	c, _ = s.HandleKey(f.ctx, key('o'))
	require.NoError(t, f.wait(t, c))
	assert.Equal(t, []string{"AB", ""}, f.lines())

	c, _ = s.HandleKey(f.ctx, key('U'))
	require.NoError(t, f.wait(t, c))
	assert.Equal(t, 2, f.engine.UndoCount(f.ctx))
}

func TestScreen_RunUntilQuit(t *testing.T) {
	f := newFixture(t, NewDocument("", []string{"a", "b"}))
	s, sim := newSimScreen(t, f)

	done := make(chan error, 1)
	go func() { done <- s.Run(f.ctx) }()

	require.NoError(t, sim.PostEvent(key('d')))
	require.NoError(t, sim.PostEvent(key('q')))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-f.ctx.Done():
		t.Fatal("Run did not return after q")
	}
}

func TestScreen_RunStopsOnContext(t *testing.T) {
	f := newFixture(t, NewDocument("", []string{"a"}))
	s, _ := newSimScreen(t, f)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestExpandTabs(t *testing.T) {
	assert.Equal(t, "a   b", expandTabs("a\tb", 4))
	assert.Equal(t, "        x", expandTabs("\t\tx", 4))
	assert.Equal(t, "plain", expandTabs("plain", 4))
}
