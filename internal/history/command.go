package history

import (
	"context"

	"github.com/dshills/revview/internal/invoke"
)

// Command is a reversible step recorded by a caller after performing it.
//
// Action is what the engine runs when the step is replayed. Inverse, when
// set, re-applies the step so the engine can move it to the opposite stack;
// a Command without an Inverse is replayed once and then dropped. Post runs
// after Action or Inverse on every replay.
type Command struct {
	Action  invoke.Invocable
	Inverse invoke.Invocable
	Post    invoke.Invocable
	Redraw  RedrawTarget
	Name    string
}

// NewCommand creates a command from an action and its inverse.
func NewCommand(name string, action, inverse invoke.Invocable) Command {
	return Command{Action: action, Inverse: inverse, Name: name}
}

// WithPost returns a copy of c with a post action.
func (c Command) WithPost(post invoke.Invocable) Command {
	c.Post = post
	return c
}

// WithRedraw returns a copy of c with a redraw target.
func (c Command) WithRedraw(target RedrawTarget) Command {
	c.Redraw = target
	return c
}

// Invoke runs the action. Failures, including panics, are returned as
// *invoke.Error.
func (c Command) Invoke(ctx context.Context) (any, error) {
	return invoke.Call(ctx, c.Action)
}

// OneShot reports whether the command has no inverse.
func (c Command) OneShot() bool {
	return c.Inverse == nil
}

// PresentationName returns the explicit name, the action's operation name,
// or "unknown".
func (c Command) PresentationName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Action != nil {
		if n := c.Action.Name(); n != "" {
			return n
		}
	}
	return unknownName
}

const unknownName = "unknown"
