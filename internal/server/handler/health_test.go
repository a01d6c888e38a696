package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStatus struct {
	degraded map[string]bool
}

func (f fakeStatus) Degraded(name string) bool { return f.degraded[name] }

func TestHealthCheckOKWhenNothingDegraded(t *testing.T) {
	h := NewHealthHandler(fakeStatus{degraded: map[string]bool{"feed": false, "upkeep": false}}, []string{"feed", "upkeep"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthCheckReturns503WhenAnyComponentDegraded(t *testing.T) {
	h := NewHealthHandler(fakeStatus{degraded: map[string]bool{"feed": false, "upkeep": true}}, []string{"feed", "upkeep"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}
