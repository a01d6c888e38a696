package handler

import "net/http"

// MetricsHandler serves the ambient metrics snapshot as JSON. snapshot is a
// thunk rather than an interface so it can wrap any concrete sink's
// Snapshot() method (e.g. metrics.Memory) without this package importing it.
type MetricsHandler struct {
	snapshot func() any
}

// NewMetricsHandler creates a MetricsHandler backed by snapshot.
func NewMetricsHandler(snapshot func() any) *MetricsHandler {
	return &MetricsHandler{snapshot: snapshot}
}

// Metrics responds with the current counters/gauges/latency snapshot.
// GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}
