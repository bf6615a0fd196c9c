package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/revview/internal/history"
	"github.com/dshills/revview/internal/logging"
)

// Metrics exports history engine activity to Prometheus.
// It implements history.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	recorded  *prometheus.CounterVec
	replayed  *prometheus.CounterVec
	undoDepth prometheus.Gauge
	redoDepth prometheus.Gauge
	reloads   prometheus.Counter
	edits     *prometheus.CounterVec
}

// NewMetrics registers the history metrics with reg.
// A nil reg gets a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		recorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "revview_history_recorded_total",
			Help: "Entries pushed onto a history stack at top level",
		}, []string{"stack"}),
		replayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "revview_history_replayed_total",
			Help: "Commands replayed from a history stack",
		}, []string{"stack", "outcome"}),
		undoDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "revview_history_undo_depth",
			Help: "Entries on the undo stack",
		}),
		redoDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "revview_history_redo_depth",
			Help: "Entries on the redo stack",
		}),
		reloads: f.NewCounter(prometheus.CounterOpts{
			Name: "revview_document_reloads_total",
			Help: "Documents reloaded after an external change",
		}),
		edits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "revview_document_edits_total",
			Help: "Edits applied to the viewed document",
		}, []string{"edit"}),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Recorded implements history.Recorder.
func (m *Metrics) Recorded(stack history.Stack) {
	m.recorded.WithLabelValues(stack.String()).Inc()
}

// Replayed implements history.Recorder.
func (m *Metrics) Replayed(stack history.Stack, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.replayed.WithLabelValues(stack.String(), outcome).Inc()
}

// Depth implements history.Recorder.
func (m *Metrics) Depth(undo, redo int) {
	m.undoDepth.Set(float64(undo))
	m.redoDepth.Set(float64(redo))
}

// Reloaded counts a document reload.
func (m *Metrics) Reloaded() {
	m.reloads.Inc()
}

// Edited counts an applied edit by presentation name.
func (m *Metrics) Edited(name string) {
	m.edits.WithLabelValues(name).Inc()
}

// MetricsServer serves /metrics over HTTP.
type MetricsServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *logging.Logger
	done   chan struct{}
}

// ServeMetrics listens on addr and serves the registry's metrics until
// Shutdown. The returned server is already accepting connections.
func ServeMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) (*MetricsServer, error) {
	if logger == nil {
		logger = logging.Null()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, NewOperationError("serve", addr, err).WithContext("metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s := &MetricsServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger.WithComponent("metrics"),
		done:   make(chan struct{}),
	}
	go s.serve()
	s.logger.Info("serving metrics on %s", s.Addr())
	return s, nil
}

func (s *MetricsServer) serve() {
	defer close(s.done)
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("metrics server: %v", err)
	}
}

// Addr returns the address the server listens on.
func (s *MetricsServer) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}
