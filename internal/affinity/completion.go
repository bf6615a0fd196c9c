package affinity

import (
	"context"
	"sync"
)

// Completion reports the outcome of work submitted to a Loop.
type Completion struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Completed returns a Completion that is already done with err.
func Completed(err error) *Completion {
	c := newCompletion()
	c.complete(err)
	return c
}

func (c *Completion) complete(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done returns a channel closed when the work has finished.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the work's error. It is only meaningful after Done is closed.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// IsDone reports whether the work has finished.
func (c *Completion) IsDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the work finishes or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
