package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/revview/internal/invoke"
)

// journal records the steps replayed by test commands.
type journal struct {
	mu    sync.Mutex
	steps []string
}

func (j *journal) step(name string) *invoke.Func {
	return invoke.NewFunc(name, func(context.Context) error {
		j.mu.Lock()
		j.steps = append(j.steps, name)
		j.mu.Unlock()
		return nil
	})
}

func (j *journal) cmd(name string) Command {
	return NewCommand(name, j.step("undo "+name), j.step("redo "+name))
}

func (j *journal) take() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.steps
	j.steps = nil
	return s
}

type states struct {
	mu  sync.Mutex
	all []State
}

func (s *states) OnHistoryChanged(st State) {
	s.mu.Lock()
	s.all = append(s.all, st)
	s.mu.Unlock()
}

func (s *states) last() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.all) == 0 {
		return State{}
	}
	return s.all[len(s.all)-1]
}

func (s *states) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.all)
}

type sink struct {
	mu   sync.Mutex
	msgs []string
	errs []error
}

func (s *sink) Report(msg string) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *sink) ReportError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *sink) errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *states, *sink) {
	t.Helper()
	obs := &states{}
	sk := &sink{}
	opts = append([]Option{WithObserver(obs), WithStatusSink(sk)}, opts...)
	return New(opts...), obs, sk
}

func TestEngine_UndoIsLIFO(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	for _, name := range []string{"A", "B", "C"} {
		e.AddUndo(ctx, j.cmd(name))
	}
	e.Undo(ctx)
	e.Undo(ctx)
	e.Undo(ctx)
	e.Undo(ctx) // nothing left

	assert.Equal(t, []string{"undo C", "undo B", "undo A"}, j.take())
	assert.Equal(t, 0, e.UndoCount(ctx))
	assert.Equal(t, 3, e.RedoCount(ctx))
}

func TestEngine_RoundTripKeepsNode(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	e.AddUndo(ctx, j.cmd("A"))
	before := e.Entries(ctx, UndoStack)
	require.Len(t, before, 1)

	e.Undo(ctx)
	redo := e.Entries(ctx, RedoStack)
	require.Len(t, redo, 1)
	assert.Equal(t, before[0].ID, redo[0].ID)
	assert.Empty(t, e.Entries(ctx, UndoStack))

	e.Redo(ctx)
	assert.Equal(t, before, e.Entries(ctx, UndoStack))
	assert.Empty(t, e.Entries(ctx, RedoStack))
	assert.Equal(t, []string{"undo A", "redo A"}, j.take())

	// And the other way round.
	e.Undo(ctx)
	e.Redo(ctx)
	e.Undo(ctx)
	assert.Equal(t, before[0].ID, e.Entries(ctx, RedoStack)[0].ID)
}

func TestEngine_TopLevelAddDiscardsRedo(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	e.AddUndo(ctx, j.cmd("A"))
	e.AddUndo(ctx, j.cmd("B"))
	e.Undo(ctx)
	e.Undo(ctx)
	require.Equal(t, 2, e.RedoCount(ctx))
	require.Equal(t, 0, e.RedoCredits(ctx))

	e.AddUndo(ctx, j.cmd("C"))
	assert.Equal(t, 0, e.RedoCount(ctx))
	assert.False(t, e.CanRedo(ctx))
	assert.Equal(t, "C", e.UndoLabel(ctx))
}

func TestEngine_RedoKeepsSiblings(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	e.AddUndo(ctx, j.cmd("A"))
	e.AddUndo(ctx, j.cmd("B"))
	e.Undo(ctx)
	e.Undo(ctx)
	j.take()

	// A was undone last, so it is on top of the redo stack.
	require.Equal(t, "A", e.RedoLabel(ctx))

	e.Redo(ctx)
	assert.Equal(t, []string{"redo A"}, j.take())
	assert.Equal(t, 1, e.RedoCount(ctx), "sibling redo entry must survive")
	assert.Equal(t, "B", e.RedoLabel(ctx))
	assert.Equal(t, "A", e.UndoLabel(ctx))
	assert.Equal(t, 0, e.RedoCredits(ctx), "credit consumed by the pushed undo entry")

	e.Redo(ctx)
	assert.Equal(t, []string{"redo B"}, j.take())
	assert.Equal(t, 2, e.UndoCount(ctx))
	assert.Equal(t, 0, e.RedoCount(ctx))
}

func TestEngine_AddRedoKeepsUndo(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	e.AddUndo(ctx, j.cmd("A"))
	e.AddRedo(ctx, j.cmd("B"))

	assert.Equal(t, 1, e.UndoCount(ctx))
	assert.Equal(t, 1, e.RedoCount(ctx))
	assert.Equal(t, "B", e.RedoLabel(ctx))
}

func TestEngine_GroupFoldsIntoOneNode(t *testing.T) {
	ctx := context.Background()
	e, obs, _ := newTestEngine(t)
	j := &journal{}

	e.BeginGroup(ctx)
	e.AddUndo(ctx, j.cmd("one"))
	e.BeginGroup(ctx)
	e.AddUndo(ctx, j.cmd("two"))
	e.BeginGroup(ctx)
	e.AddUndo(ctx, j.cmd("three"))
	e.EndGroup(ctx, "inner")
	e.EndGroup(ctx, "middle")

	assert.True(t, e.IsGrouping(ctx))
	assert.Equal(t, 0, e.UndoCount(ctx), "nothing is pushed before the outermost end")
	assert.Equal(t, 0, obs.count(), "buffered adds do not notify")

	e.EndGroup(ctx, "Batch")
	assert.False(t, e.IsGrouping(ctx))

	entries := e.Entries(ctx, UndoStack)
	require.Len(t, entries, 1)
	assert.Equal(t, "Batch", entries[0].Name)
	assert.Equal(t, 3, entries[0].Steps)

	e.Undo(ctx)
	assert.Equal(t, []string{"undo three", "undo two", "undo one"}, j.take())
	assert.Equal(t, 0, e.UndoCount(ctx))
	redo := e.Entries(ctx, RedoStack)
	require.Len(t, redo, 1, "one undo of a group yields exactly one redo node")
	assert.Equal(t, "Batch", redo[0].Name)
	assert.Equal(t, 3, redo[0].Steps)

	e.Redo(ctx)
	assert.Equal(t, []string{"redo one", "redo two", "redo three"}, j.take())
	assert.Equal(t, 1, e.UndoCount(ctx))
	assert.Equal(t, 0, e.RedoCount(ctx))

	e.Undo(ctx)
	assert.Equal(t, []string{"undo three", "undo two", "undo one"}, j.take())
}

func TestEngine_GroupEdgeCases(t *testing.T) {
	ctx := context.Background()
	e, obs, _ := newTestEngine(t)
	j := &journal{}

	e.EndGroup(ctx, "stray")
	assert.False(t, e.IsGrouping(ctx))

	e.BeginGroup(ctx)
	e.EndGroup(ctx, "empty")
	assert.Equal(t, 0, e.UndoCount(ctx))
	assert.Equal(t, 0, obs.count())

	// A group closing at top level discards redo like any new action.
	e.AddUndo(ctx, j.cmd("A"))
	e.Undo(ctx)
	require.Equal(t, 1, e.RedoCount(ctx))
	e.BeginGroup(ctx)
	e.AddUndo(ctx, j.cmd("B"))
	e.EndGroup(ctx, "G")
	assert.Equal(t, 0, e.RedoCount(ctx))

	// Unnamed groups take the label of their most recent entry.
	e.BeginGroup(ctx)
	e.AddUndo(ctx, j.cmd("C"))
	e.AddUndo(ctx, j.cmd("D"))
	e.EndGroup(ctx, "")
	assert.Equal(t, "D", e.UndoLabel(ctx))
}

func TestEngine_CancelGroup(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	e.BeginGroup(ctx)
	e.BeginGroup(ctx)
	e.AddUndo(ctx, j.cmd("A"))
	e.CancelGroup(ctx)

	assert.False(t, e.IsGrouping(ctx))
	assert.Equal(t, 0, e.UndoCount(ctx))

	e.EndGroup(ctx, "late")
	assert.Equal(t, 0, e.UndoCount(ctx))
}

func TestEngine_DisableDiscardsHistory(t *testing.T) {
	ctx := context.Background()
	e, obs, _ := newTestEngine(t)
	j := &journal{}

	e.AddUndo(ctx, j.cmd("A"))
	e.AddUndo(ctx, j.cmd("B"))
	e.Undo(ctx)
	e.BeginGroup(ctx)

	e.SetEnabled(ctx, false)
	assert.False(t, e.IsEnabled(ctx))
	assert.False(t, e.IsGrouping(ctx))
	assert.Equal(t, 0, e.UndoCount(ctx))
	assert.Equal(t, 0, e.RedoCount(ctx))
	assert.False(t, obs.last().Enabled)

	e.AddUndo(ctx, j.cmd("C"))
	e.AddRedo(ctx, j.cmd("D"))
	assert.Equal(t, 0, e.UndoCount(ctx))
	assert.Equal(t, 0, e.RedoCount(ctx))

	e.SetEnabled(ctx, true)
	assert.True(t, e.IsEnabled(ctx))
	assert.Equal(t, 0, e.UndoCount(ctx), "history is not restored")
	assert.True(t, obs.last().Enabled)

	e.AddUndo(ctx, j.cmd("E"))
	assert.Equal(t, 1, e.UndoCount(ctx))
}

func TestEngine_ClearAll(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	e.AddUndo(ctx, j.cmd("A"))
	e.AddUndo(ctx, j.cmd("B"))
	e.Undo(ctx)
	e.ClearAll(ctx)

	assert.True(t, e.IsEnabled(ctx))
	assert.False(t, e.CanUndo(ctx))
	assert.False(t, e.CanRedo(ctx))
	assert.Equal(t, 0, e.RedoCredits(ctx))
}

func TestEngine_ObserverScenario(t *testing.T) {
	ctx := context.Background()
	e, obs, _ := newTestEngine(t)
	j := &journal{}

	e.AddUndo(ctx, j.cmd("X"))
	e.AddUndo(ctx, j.cmd("Y"))
	require.Equal(t, 2, obs.count())

	e.Undo(ctx)
	assert.Equal(t, 3, obs.count(), "one notification per operation")
	assert.Equal(t, State{
		Enabled:   true,
		UndoLabel: "X",
		RedoLabel: "Y",
		UndoDepth: 1,
		RedoDepth: 1,
	}, obs.last())

	e.Undo(ctx)
	s := obs.last()
	assert.True(t, s.UndoEmpty)
	assert.False(t, s.RedoEmpty)
	assert.Equal(t, "X", s.RedoLabel)

	e.Redo(ctx)
	e.Redo(ctx)
	s = obs.last()
	assert.False(t, s.UndoEmpty)
	assert.True(t, s.RedoEmpty)
	assert.Equal(t, "Y", s.UndoLabel)
	assert.Equal(t, 2, s.UndoDepth)
	assert.Equal(t, []string{"undo Y", "undo X", "redo X", "redo Y"}, j.take())

	// Nothing to do, nothing to report.
	n := obs.count()
	e.Redo(ctx)
	assert.Equal(t, n, obs.count())
}

func TestEngine_OneShotCommand(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	e.AddUndo(ctx, Command{Action: j.step("once"), Name: "Once"})
	assert.True(t, e.CanUndo(ctx))

	e.Undo(ctx)
	assert.Equal(t, []string{"once"}, j.take())
	assert.False(t, e.CanUndo(ctx))
	assert.False(t, e.CanRedo(ctx))
}

// A redo always leaves a credit, even when the replayed entry is one-shot
// and never pushes an undo entry. The next top-level add consumes it and
// the redo chain survives that add.
func TestEngine_OneShotRedoLeavesCredit(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	e.AddRedo(ctx, j.cmd("kept"))
	e.AddRedo(ctx, Command{Action: j.step("once"), Name: "Once"})

	e.Redo(ctx)
	assert.Equal(t, 1, e.RedoCredits(ctx))
	assert.Equal(t, 0, e.UndoCount(ctx))

	e.AddUndo(ctx, j.cmd("A"))
	assert.Equal(t, 0, e.RedoCredits(ctx))
	assert.Equal(t, 1, e.RedoCount(ctx))

	e.AddUndo(ctx, j.cmd("B"))
	assert.Equal(t, 0, e.RedoCount(ctx))
}

func TestEngine_FailureIsReportedAndConsumed(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	e, _, sk := newTestEngine(t, WithRecorder(rec))
	j := &journal{}
	target := &fakeTarget{bounds: Rect{W: 10, H: 1}}

	boom := errors.New("boom")
	cmd := NewCommand("Broken",
		invoke.NewFunc("fail", func(context.Context) error { return boom }),
		j.step("redo"),
	).WithPost(j.step("post")).WithRedraw(target)
	e.AddUndo(ctx, cmd)

	e.Undo(ctx)

	assert.Empty(t, j.take(), "post must not run after a failed action")
	assert.Empty(t, target.invalidated)
	assert.Equal(t, 0, e.UndoCount(ctx))
	assert.Equal(t, 0, e.RedoCount(ctx), "failed node is consumed")

	errs := sk.errors()
	require.Len(t, errs, 1)
	var re *ReplayError
	require.ErrorAs(t, errs[0], &re)
	assert.Equal(t, "undo", re.Op)
	assert.Equal(t, "Broken", re.Entry)
	assert.ErrorIs(t, errs[0], invoke.ErrTargetFailed)
	assert.ErrorIs(t, errs[0], boom)
	assert.Equal(t, 1, rec.failures())
}

func TestEngine_PanicIsReported(t *testing.T) {
	ctx := context.Background()
	e, _, sk := newTestEngine(t)

	e.AddUndo(ctx, NewCommand("Panics",
		invoke.NewFunc("panic", func(context.Context) error { panic("bad") }),
		nil,
	))
	require.NotPanics(t, func() { e.Undo(ctx) })

	errs := sk.errors()
	require.Len(t, errs, 1)
	var pe *invoke.PanicError
	assert.ErrorAs(t, errs[0], &pe)
	assert.Equal(t, "bad", pe.Value)
}

func TestEngine_FailureInGroupSkipsOnlyThatStep(t *testing.T) {
	ctx := context.Background()
	e, _, sk := newTestEngine(t)
	j := &journal{}

	e.BeginGroup(ctx)
	e.AddUndo(ctx, j.cmd("one"))
	e.AddUndo(ctx, NewCommand("two",
		invoke.NewFunc("fail", func(context.Context) error { return errors.New("nope") }),
		j.step("redo two"),
	))
	e.AddUndo(ctx, j.cmd("three"))
	e.EndGroup(ctx, "G")

	e.Undo(ctx)
	assert.Equal(t, []string{"undo three", "undo one"}, j.take())
	assert.Len(t, sk.errors(), 1)

	redo := e.Entries(ctx, RedoStack)
	require.Len(t, redo, 1)
	assert.Equal(t, 2, redo[0].Steps)
}

func TestEngine_InvalidEntrySkipped(t *testing.T) {
	ctx := context.Background()
	e, _, sk := newTestEngine(t)
	j := &journal{}

	// A group whose middle child carries no payload.
	good1 := newLeafNode(j.cmd("one"), time.Now())
	bad := &node{name: "corrupt"}
	good2 := newLeafNode(j.cmd("two"), time.Now())
	head := push(push(push(nil, good1), bad), good2)
	e.undoTop = newGroupNode(head, "G", time.Now())
	e.undoDepth = 1

	e.Undo(ctx)
	assert.Equal(t, []string{"undo two", "undo one"}, j.take())

	errs := sk.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrInvalidEntry)
	var ie *InvalidEntryError
	require.ErrorAs(t, errs[0], &ie)
	assert.Equal(t, "corrupt", ie.Name)
	assert.Equal(t, 1, e.RedoCount(ctx))
}

func TestEngine_PostAndRedraw(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		want    Rect
		initial Rect
		grown   Rect
	}{
		{
			name:    "default padding",
			initial: Rect{X: 2, Y: 3, W: 10, H: 1},
			grown:   Rect{X: 2, Y: 3, W: 10, H: 4},
			want:    Rect{X: 1, Y: 2, W: 12, H: 6},
		},
		{
			name:    "no padding",
			opts:    []Option{WithRedrawPadding(0)},
			initial: Rect{X: 2, Y: 3, W: 10, H: 1},
			grown:   Rect{X: 0, Y: 3, W: 4, H: 1},
			want:    Rect{X: 0, Y: 3, W: 12, H: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e, _, _ := newTestEngine(t, tt.opts...)
			j := &journal{}
			target := &fakeTarget{bounds: tt.initial}

			action := invoke.NewFunc("grow", func(context.Context) error {
				target.bounds = tt.grown
				return nil
			})
			e.AddUndo(ctx, NewCommand("Grow", action, j.step("shrink")).
				WithPost(j.step("post")).
				WithRedraw(target))

			e.Undo(ctx)
			assert.Equal(t, []string{"post"}, j.take())
			assert.Equal(t, []Rect{tt.want}, target.invalidated)
		})
	}
}

func TestEngine_CommandsMayReenter(t *testing.T) {
	ctx := context.Background()
	e, obs, _ := newTestEngine(t)
	j := &journal{}

	var seen State
	action := invoke.NewFunc("reenter", func(ctx context.Context) error {
		seen = e.State(ctx)
		e.AddUndo(ctx, j.cmd("nested"))
		return nil
	})
	e.AddUndo(ctx, Command{Action: action, Name: "Outer"})
	before := obs.count()

	done := make(chan struct{})
	go func() {
		e.Undo(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("undo deadlocked on reentrant call")
	}

	assert.Equal(t, 0, seen.UndoDepth, "outer entry already popped")
	assert.Equal(t, "nested", e.UndoLabel(ctx))
	assert.Equal(t, before+1, obs.count(), "observers notified once")
}

func TestEngine_LockBlocksOthers(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	held, unlock := e.Lock(ctx)
	e.AddUndo(held, j.cmd("mine"))

	added := make(chan struct{})
	go func() {
		e.AddUndo(ctx, j.cmd("theirs"))
		close(added)
	}()

	select {
	case <-added:
		t.Fatal("add ran while lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, "mine", e.UndoLabel(held))

	unlock()
	select {
	case <-added:
	case <-time.After(5 * time.Second):
		t.Fatal("add never ran")
	}
	assert.Equal(t, "theirs", e.UndoLabel(ctx))
}

func TestEngine_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	j := &journal{}

	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e.AddUndo(ctx, j.cmd("x"))
				_ = e.State(ctx)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, e.UndoCount(ctx))
	assert.Len(t, e.Entries(ctx, UndoStack), 1000)
}

func TestEngine_Recorder(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	e, _, _ := newTestEngine(t, WithRecorder(rec))
	j := &journal{}

	e.AddUndo(ctx, j.cmd("A"))
	e.Undo(ctx)
	e.Redo(ctx)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, map[Stack]int{UndoStack: 2, RedoStack: 1}, rec.recorded)
	assert.Equal(t, map[Stack]int{UndoStack: 1, RedoStack: 1}, rec.replayed)
	assert.Equal(t, [2]int{1, 0}, rec.depth)
}

func TestEngine_EntriesCarryTimestamps(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e, _, _ := newTestEngine(t, WithClock(func() time.Time { return at }))
	j := &journal{}

	e.AddUndo(ctx, j.cmd("A"))
	entries := e.Entries(ctx, UndoStack)
	require.Len(t, entries, 1)
	assert.Equal(t, at, entries[0].Recorded)
	assert.Equal(t, 1, entries[0].Steps)
}

func TestStackString(t *testing.T) {
	assert.Equal(t, "undo", UndoStack.String())
	assert.Equal(t, "redo", RedoStack.String())
}

type fakeTarget struct {
	bounds      Rect
	invalidated []Rect
}

func (f *fakeTarget) Bounds() Rect { return f.bounds }
func (f *fakeTarget) Invalidate(r Rect) { f.invalidated = append(f.invalidated, r) }

type countingRecorder struct {
	mu       sync.Mutex
	recorded map[Stack]int
	replayed map[Stack]int
	failed   int
	depth    [2]int
}

func (r *countingRecorder) Recorded(s Stack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recorded == nil {
		r.recorded = map[Stack]int{}
	}
	r.recorded[s]++
}

func (r *countingRecorder) Replayed(s Stack, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	if r.replayed == nil {
		r.replayed = map[Stack]int{}
	}
	r.replayed[s]++
}

func (r *countingRecorder) Depth(undo, redo int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth = [2]int{undo, redo}
}

func (r *countingRecorder) failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}
