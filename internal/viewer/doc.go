// Package viewer is a small terminal viewer whose edits are reversible.
//
// A Session owns the viewed Document and records every edit it makes as a
// history command, so the edit can be undone and redone. Compound edits,
// such as joining lines or indenting a paragraph, are recorded inside a
// transaction and undo as one step. Lua scripts can add actions bound to
// the keys 1-9.
//
// Edits run on the history loop. The Screen handles keys either on that
// loop or on its own goroutine; in the second case every edit is posted.
// A Watcher notices when the file changes on disk. The session then
// retires the old document, reloads it, and clears any history that still
// refers to the retired copy.
package viewer
