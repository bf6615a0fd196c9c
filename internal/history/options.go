package history

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/revview/internal/logging"
)

// DefaultRedrawPadding is the margin added around invalidated regions.
const DefaultRedrawPadding = 1

const tracerName = "github.com/dshills/revview/internal/history"

// Option configures an Engine.
type Option func(*Engine)

// WithObserver sets the observer notified after every change.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithStatusSink sets the sink receiving status messages and failures.
func WithStatusSink(s StatusSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithLogger sets the logger for debug output and the default status sink.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithTracer sets the tracer used for replay spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithRedrawPadding sets the margin added around invalidated regions.
func WithRedrawPadding(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.padding = n
		}
	}
}

// WithClock sets the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
