package viewer

import (
	"errors"
	"fmt"
)

// Errors returned by the viewer.
var (
	ErrRetired    = errors.New("document retired")
	ErrLineRange  = errors.New("line out of range")
	ErrNoScript   = errors.New("no script action")
	ErrScriptLoad = errors.New("script load failed")
)

// EditError describes a failed document edit.
type EditError struct {
	Op   string
	Line int
	Err  error
}

func (e *EditError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s line %d: %v", e.Op, e.Line+1, e.Err)
}

func (e *EditError) Unwrap() error {
	return e.Err
}

// FileError describes a file operation failure.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error {
	return e.Err
}
