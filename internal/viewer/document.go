package viewer

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Document is a line-oriented text document.
//
// The edit methods are exported so history commands can bind them by name.
// Every edit on a retired document fails with ErrRetired.
type Document struct {
	mu      sync.RWMutex
	path    string
	lines   []string
	retired bool
}

// NewDocument creates a document from lines. A document always has at
// least one line.
func NewDocument(path string, lines []string) *Document {
	if len(lines) == 0 {
		lines = []string{""}
	}
	cp := make([]string, len(lines))
	copy(cp, lines)
	return &Document{path: path, lines: cp}
}

// OpenDocument reads the file at path. A missing file opens as an empty
// document.
func OpenDocument(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &FileError{Op: "open", Path: path, Err: err}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(abs, nil), nil
		}
		return nil, &FileError{Op: "open", Path: abs, Err: err}
	}
	return NewDocument(abs, splitLines(data)), nil
}

func splitLines(data []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// Path returns the absolute file path, or empty for a scratch document.
func (d *Document) Path() string {
	return d.path
}

// Name returns the base name of the file.
func (d *Document) Name() string {
	if d.path == "" {
		return "[scratch]"
	}
	return filepath.Base(d.path)
}

// LineCount returns the number of lines.
func (d *Document) LineCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.lines)
}

// Line returns line i, or empty if out of range.
func (d *Document) Line(i int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.lines) {
		return ""
	}
	return d.lines[i]
}

// Lines returns a copy of all lines.
func (d *Document) Lines() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cp := make([]string, len(d.lines))
	copy(cp, d.lines)
	return cp
}

// Text returns the document joined with newlines.
func (d *Document) Text() string {
	return strings.Join(d.Lines(), "\n")
}

// SetLine replaces line i.
func (d *Document) SetLine(i int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set", i, len(d.lines)); err != nil {
		return err
	}
	d.lines[i] = text
	return nil
}

// InsertLine inserts text before line i. i may equal LineCount to append.
func (d *Document) InsertLine(i int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("insert", i, len(d.lines)+1); err != nil {
		return err
	}
	d.lines = append(d.lines, "")
	copy(d.lines[i+1:], d.lines[i:])
	d.lines[i] = text
	return nil
}

// DeleteLine removes line i. The last remaining line is cleared instead.
func (d *Document) DeleteLine(i int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("delete", i, len(d.lines)); err != nil {
		return err
	}
	if len(d.lines) == 1 {
		d.lines[0] = ""
		return nil
	}
	d.lines = append(d.lines[:i], d.lines[i+1:]...)
	return nil
}

// SetLines replaces the whole content.
func (d *Document) SetLines(lines []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.retired {
		return &EditError{Op: "replace", Line: -1, Err: ErrRetired}
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	d.lines = append(d.lines[:0:0], lines...)
	return nil
}

// Retire marks the document as stale. Further edits fail.
func (d *Document) Retire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retired = true
}

// Retired reports whether the document has been retired.
func (d *Document) Retired() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.retired
}

func (d *Document) check(op string, i, limit int) error {
	if d.retired {
		return &EditError{Op: op, Line: i, Err: ErrRetired}
	}
	if i < 0 || i >= limit {
		return &EditError{Op: op, Line: i, Err: ErrLineRange}
	}
	return nil
}

// String implements fmt.Stringer.
func (d *Document) String() string {
	return fmt.Sprintf("%s (%d lines)", d.Name(), d.LineCount())
}
