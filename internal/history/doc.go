// Package history records reversible commands and replays them.
//
// A caller performs an edit, then records a Command whose Action reverses
// it and whose Inverse re-applies it:
//
//	e := history.New(history.WithObserver(obs))
//	doc.DeleteLine(3)
//	e.AddUndo(ctx, history.NewCommand("Delete Line",
//	    invoke.MustMethod(doc, "InsertLine", 3, text),
//	    invoke.MustMethod(doc, "DeleteLine", 3)))
//
//	e.Undo(ctx) // runs InsertLine, moves the entry to the redo stack
//	e.Redo(ctx) // runs DeleteLine, moves it back
//
// # Stacks
//
// The undo and redo stacks are singly linked lists of nodes. Replaying a
// node swaps its action and inverse and pushes it onto the opposite stack.
// A Command without an Inverse is replayed once and dropped.
//
// Recording a new top-level undo entry discards the redo stack, except when
// the entry is the one produced by a Redo. Redo leaves a credit that the
// next top-level undo push consumes instead of discarding.
//
// # Groups
//
// BeginGroup and EndGroup nest. Everything recorded until the outermost
// EndGroup folds into one entry, which a single Undo reverses as a whole
// and which becomes exactly one redo entry.
//
// # Concurrency
//
// Every Engine method holds the engine lock for its whole duration.
// Replayed commands receive a context that carries the lock, so they may
// call back into the engine with it. Affine instead runs every mutation on
// an affinity.Loop and returns a Completion.
//
// # Failures
//
// Nothing replayed can panic past the engine. A failing step is reported
// to the StatusSink as a *ReplayError, the rest of that node is skipped,
// and the node is consumed.
package history
