// Package affinity confines work to one logical thread.
//
// A Loop owns a single goroutine that executes posted tasks in the order they
// were posted. Code that must run on the loop checks OnLoop(ctx): every task
// receives a context marked with its loop, so calls made from inside a task
// (directly or through callbacks) are recognised as on-loop and run inline,
// while calls from any other goroutine are queued.
//
// Queued work is fire-and-forget from the caller's point of view; each
// submission returns a *Completion that can be waited on when the caller
// needs the result.
//
//	loop := affinity.New()
//	go loop.Run(ctx)
//	defer loop.Close()
//
//	c := loop.Do(ctx, func(ctx context.Context) error {
//	    // runs on the loop goroutine
//	    return nil
//	})
//	err := c.Wait(ctx)
package affinity

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Errors returned by Loop.
var (
	ErrClosed         = errors.New("affinity loop closed")
	ErrAlreadyRunning = errors.New("affinity loop already running")
	ErrQueueFull      = errors.New("affinity queue full")
	ErrTaskPanicked   = errors.New("affinity task panicked")
)

// DefaultQueueSize is the task buffer used when none is configured.
const DefaultQueueSize = 256

// Task is a unit of work executed on the loop goroutine.
type Task func(ctx context.Context) error

// PanicHandler is called with the recovered value and stack when a task panics.
type PanicHandler func(recovered any, stack []byte)

type loopKey struct{}

type queued struct {
	ctx  context.Context
	fn   Task
	done *Completion
}

// Loop executes tasks on a single goroutine.
type Loop struct {
	queue   chan queued
	closing chan struct{}
	stopped chan struct{}

	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	panicHandler PanicHandler

	posted   atomic.Uint64
	executed atomic.Uint64
	failed   atomic.Uint64
	panicked atomic.Uint64
	dropped  atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithQueueSize sets the task buffer size.
func WithQueueSize(size int) Option {
	return func(l *Loop) {
		if size > 0 {
			l.queue = make(chan queued, size)
		}
	}
}

// WithPanicHandler sets the handler called when a task panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(l *Loop) {
		l.panicHandler = h
	}
}

// New creates a Loop. Tasks may be posted before Run is called; they are
// buffered until the loop starts.
func New(opts ...Option) *Loop {
	l := &Loop{
		queue:   make(chan queued, DefaultQueueSize),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run processes tasks until ctx is cancelled or Close is called.
// It must be called at most once; the calling goroutine becomes the loop.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(l.stopped)

	loopCtx := context.WithValue(ctx, loopKey{}, l)

	for {
		select {
		case <-ctx.Done():
			l.markClosed()
			l.drain(ctx.Err())
			return ctx.Err()
		case <-l.closing:
			l.drain(ErrClosed)
			return nil
		case q := <-l.queue:
			l.execute(loopCtx, q)
		}
	}
}

// Close stops the loop. Tasks still queued complete with ErrClosed.
// Safe to call multiple times, but not from inside a task.
func (l *Loop) Close() {
	l.markClosed()
	if l.running.Load() {
		<-l.stopped
	} else {
		l.drain(ErrClosed)
	}
}

func (l *Loop) markClosed() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.closing)
	})
}

// OnLoop reports whether ctx was issued by this loop to a running task.
func (l *Loop) OnLoop(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Do runs fn inline when called on the loop, otherwise posts it.
func (l *Loop) Do(ctx context.Context, fn Task) *Completion {
	if l.OnLoop(ctx) {
		return Completed(l.run(ctx, fn))
	}
	return l.Post(ctx, fn)
}

// Post queues fn for execution on the loop and returns immediately.
//
// Off-loop callers block only while the queue is full. A post from the loop
// itself never blocks and fails with ErrQueueFull instead.
func (l *Loop) Post(ctx context.Context, fn Task) *Completion {
	if l.closed.Load() {
		return Completed(ErrClosed)
	}

	q := queued{ctx: ctx, fn: fn, done: newCompletion()}

	if l.OnLoop(ctx) {
		select {
		case l.queue <- q:
			l.posted.Add(1)
			return q.done
		default:
			l.dropped.Add(1)
			return Completed(ErrQueueFull)
		}
	}

	select {
	case l.queue <- q:
		l.posted.Add(1)
		if l.closed.Load() {
			l.lateDrain()
		}
		return q.done
	case <-l.closing:
		return Completed(ErrClosed)
	case <-ctx.Done():
		l.dropped.Add(1)
		return Completed(ctx.Err())
	}
}

// execute runs one queued task on the loop goroutine. The poster's context
// only decides whether the task still runs; the task itself receives the
// loop's context.
func (l *Loop) execute(loopCtx context.Context, q queued) {
	if err := q.ctx.Err(); err != nil {
		l.failed.Add(1)
		q.done.complete(err)
		return
	}

	q.done.complete(l.run(loopCtx, q.fn))
}

// run executes fn with panic recovery.
func (l *Loop) run(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.panicked.Add(1)
			stack := debug.Stack()
			if l.panicHandler != nil {
				func() {
					defer func() { _ = recover() }()
					l.panicHandler(r, stack)
				}()
			}
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()

	l.executed.Add(1)
	err = fn(ctx)
	if err != nil {
		l.failed.Add(1)
	}
	return err
}

// drain fails every task still queued.
func (l *Loop) drain(err error) {
	for {
		select {
		case q := <-l.queue:
			q.done.complete(err)
		default:
			return
		}
	}
}

// lateDrain fails tasks that raced into the queue while the loop shut down.
func (l *Loop) lateDrain() {
	if !l.running.Load() {
		l.drain(ErrClosed)
		return
	}
	go func() {
		<-l.stopped
		l.drain(ErrClosed)
	}()
}

// Stats returns loop statistics.
func (l *Loop) Stats() Stats {
	return Stats{
		Posted:     l.posted.Load(),
		Executed:   l.executed.Load(),
		Failed:     l.failed.Load(),
		Panicked:   l.panicked.Load(),
		Dropped:    l.dropped.Load(),
		QueueDepth: len(l.queue),
	}
}

// IsRunning returns true while Run is active.
func (l *Loop) IsRunning() bool {
	return l.running.Load() && !l.closed.Load()
}

// Stats contains counters for a Loop.
type Stats struct {
	// Posted is the number of tasks accepted into the queue.
	Posted uint64

	// Executed is the number of tasks run, inline or queued.
	Executed uint64

	// Failed is the number of tasks that returned an error or were skipped
	// because their context was already done.
	Failed uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Dropped is the number of posts rejected.
	Dropped uint64

	// QueueDepth is the number of tasks waiting.
	QueueDepth int
}
