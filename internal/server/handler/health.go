package handler

import (
	"net/http"
)

// ComponentStatus reports whether a supervised component has exhausted its
// restart budget, satisfied by supervisor.Supervisor.Degraded.
type ComponentStatus interface {
	Degraded(name string) bool
}

// HealthHandler serves the health-check endpoint over a fixed, known set of
// supervised component names.
type HealthHandler struct {
	status     ComponentStatus
	components []string
}

// NewHealthHandler creates a HealthHandler that reports on the given
// component names.
func NewHealthHandler(status ComponentStatus, components []string) *HealthHandler {
	return &HealthHandler{status: status, components: components}
}

// HealthCheck responds 200 with per-component degraded flags when every
// component is still within its restart budget, or 503 when at least one
// has exhausted it.
// GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	degraded := make(map[string]bool, len(h.components))
	anyDegraded := false
	for _, name := range h.components {
		d := h.status.Degraded(name)
		degraded[name] = d
		anyDegraded = anyDegraded || d
	}

	code := http.StatusOK
	overall := "ok"
	if anyDegraded {
		code = http.StatusServiceUnavailable
		overall = "degraded"
	}

	writeJSON(w, code, map[string]any{
		"status":     overall,
		"components": degraded,
	})
}
