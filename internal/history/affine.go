package history

import (
	"context"

	"github.com/dshills/revview/internal/affinity"
)

// Affine confines every mutating engine call to one affinity loop.
//
// A call made with a context issued by the loop runs inline and returns an
// already completed Completion. Any other call is posted to the loop and
// returns at once; the caller must not assume the change has happened
// until the Completion is done.
//
// Posted mutations run even if the caller's context is done by the time
// the loop reaches them. Transaction and Run are skipped in that case.
type Affine struct {
	engine *Engine
	loop   *affinity.Loop
}

// NewAffine wraps engine so that its mutations run on loop.
func NewAffine(engine *Engine, loop *affinity.Loop) *Affine {
	return &Affine{engine: engine, loop: loop}
}

// Engine returns the wrapped engine for read-only queries.
func (a *Affine) Engine() *Engine {
	return a.engine
}

// Loop returns the loop mutations run on.
func (a *Affine) Loop() *affinity.Loop {
	return a.loop
}

func (a *Affine) do(ctx context.Context, fn func(ctx context.Context)) *affinity.Completion {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.loop.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// AddUndo records cmd on the undo stack.
func (a *Affine) AddUndo(ctx context.Context, cmd Command) *affinity.Completion {
	return a.do(ctx, func(ctx context.Context) { a.engine.AddUndo(ctx, cmd) })
}

// AddRedo records cmd on the redo stack.
func (a *Affine) AddRedo(ctx context.Context, cmd Command) *affinity.Completion {
	return a.do(ctx, func(ctx context.Context) { a.engine.AddRedo(ctx, cmd) })
}

// Undo replays the most recent undo entry.
func (a *Affine) Undo(ctx context.Context) *affinity.Completion {
	return a.do(ctx, a.engine.Undo)
}

// Redo replays the most recent redo entry.
func (a *Affine) Redo(ctx context.Context) *affinity.Completion {
	return a.do(ctx, a.engine.Redo)
}

// BeginGroup opens a group.
func (a *Affine) BeginGroup(ctx context.Context) *affinity.Completion {
	return a.do(ctx, a.engine.BeginGroup)
}

// EndGroup closes a group.
func (a *Affine) EndGroup(ctx context.Context, name string) *affinity.Completion {
	return a.do(ctx, func(ctx context.Context) { a.engine.EndGroup(ctx, name) })
}

// CancelGroup drops any open group.
func (a *Affine) CancelGroup(ctx context.Context) *affinity.Completion {
	return a.do(ctx, a.engine.CancelGroup)
}

// SetEnabled turns recording on or off.
func (a *Affine) SetEnabled(ctx context.Context, enabled bool) *affinity.Completion {
	return a.do(ctx, func(ctx context.Context) { a.engine.SetEnabled(ctx, enabled) })
}

// ClearAll discards all history.
func (a *Affine) ClearAll(ctx context.Context) *affinity.Completion {
	return a.do(ctx, a.engine.ClearAll)
}

// Transaction runs fn on the loop inside a group. The Completion carries
// fn's error.
func (a *Affine) Transaction(ctx context.Context, name string, fn func(ctx context.Context) error) *affinity.Completion {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.loop.Do(ctx, func(ctx context.Context) error {
		return a.engine.Transaction(ctx, name, fn)
	})
}

// Run runs fn on the loop. Edits to state that history commands refer to
// should go through Run so they are ordered with replays.
func (a *Affine) Run(ctx context.Context, fn func(ctx context.Context) error) *affinity.Completion {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.loop.Do(ctx, fn)
}
