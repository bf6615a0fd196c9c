package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/revview/internal/history"
	"github.com/dshills/revview/internal/invoke"
)

// metricValue returns the value of the sample of family name whose labels
// include every pair in labels, or -1 if there is none.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	samples:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue samples
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	return -1
}

func TestMetrics_Recorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	assert.Same(t, reg, m.Registry())

	m.Recorded(history.UndoStack)
	m.Recorded(history.UndoStack)
	m.Recorded(history.RedoStack)
	m.Replayed(history.UndoStack, nil)
	m.Replayed(history.UndoStack, errors.New("boom"))
	m.Depth(3, 1)
	m.Reloaded()
	m.Edited("Join Lines")

	assert.Equal(t, 2.0, metricValue(t, reg, "revview_history_recorded_total", map[string]string{"stack": "undo"}))
	assert.Equal(t, 1.0, metricValue(t, reg, "revview_history_recorded_total", map[string]string{"stack": "redo"}))
	assert.Equal(t, 1.0, metricValue(t, reg, "revview_history_replayed_total", map[string]string{"stack": "undo", "outcome": "failed"}))
	assert.Equal(t, 1.0, metricValue(t, reg, "revview_history_replayed_total", map[string]string{"stack": "undo", "outcome": "ok"}))
	assert.Equal(t, 3.0, metricValue(t, reg, "revview_history_undo_depth", nil))
	assert.Equal(t, 1.0, metricValue(t, reg, "revview_history_redo_depth", nil))
	assert.Equal(t, 1.0, metricValue(t, reg, "revview_document_reloads_total", nil))
	assert.Equal(t, 1.0, metricValue(t, reg, "revview_document_edits_total", map[string]string{"edit": "Join Lines"}))
}

func TestMetrics_EngineIntegration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := history.New(history.WithRecorder(m))
	ctx := context.Background()

	var n int
	inc := history.NewCommand("Inc",
		invoke.NewFunc("dec", func(context.Context) error { n--; return nil }),
		invoke.NewFunc("inc", func(context.Context) error { n++; return nil }),
	)
	e.AddUndo(ctx, inc)
	e.AddUndo(ctx, inc)
	e.Undo(ctx)
	assert.Equal(t, -1, n)

	assert.Equal(t, 2.0, metricValue(t, reg, "revview_history_recorded_total", map[string]string{"stack": "undo"}))
	assert.Equal(t, 1.0, metricValue(t, reg, "revview_history_replayed_total", map[string]string{"stack": "undo", "outcome": "ok"}))
	assert.Equal(t, 1.0, metricValue(t, reg, "revview_history_undo_depth", nil))
	assert.Equal(t, 1.0, metricValue(t, reg, "revview_history_redo_depth", nil))
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Reloaded()

	srv, err := ServeMetrics("127.0.0.1:0", reg, nil)
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "revview_document_reloads_total 1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err = ServeMetrics("not-an-address", reg, nil)
	var opErr *OperationError
	assert.ErrorAs(t, err, &opErr)
	assert.Equal(t, "serve", opErr.Op)
}
