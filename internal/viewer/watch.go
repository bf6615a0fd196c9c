package viewer

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/revview/internal/logging"
)

// DefaultWatchDelay is how long the watcher waits for a burst of changes
// to settle before reporting one.
const DefaultWatchDelay = 100 * time.Millisecond

// Watcher reports external changes to one file.
//
// The file's directory is watched rather than the file itself, so editors
// that save by renaming a new file over the old one are still seen.
// Changes within the delay window are coalesced into one callback, which
// runs on a timer goroutine.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	delay    time.Duration
	onChange func(path string)
	logger   *logging.Logger

	mu      sync.Mutex
	timer   *time.Timer
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup

	changes atomic.Int64
	errors  atomic.Int64
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithWatchDelay sets the debounce delay.
func WithWatchDelay(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *logging.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher starts watching path and calls onChange after it is written,
// created, removed or renamed.
func NewWatcher(path string, onChange func(path string), opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, &FileError{Op: "watch", Path: abs, Err: err}
	}

	w := &Watcher{
		fsw:      fsw,
		path:     abs,
		delay:    DefaultWatchDelay,
		onChange: onChange,
		logger:   logging.Null(),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("watch")

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Changes returns the number of change callbacks fired.
func (w *Watcher) Changes() int64 {
	return w.changes.Load()
}

// Errors returns the number of errors reported by the file system.
func (w *Watcher) Errors() int64 {
	return w.errors.Load()
}

// Close stops the watcher. Pending callbacks are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsw.Close()
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.errors.Add(1)
			w.logger.Warn("watch %s: %v", w.path, err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("%s %s", ev.Op, ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	closed := w.closed
	w.timer = nil
	w.mu.Unlock()
	if closed {
		return
	}
	w.changes.Add(1)
	w.onChange(w.path)
}
