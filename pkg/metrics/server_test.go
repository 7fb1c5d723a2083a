package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServer_Endpoints(t *testing.T) {
	get := func(s *Server, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	// Registry state is process-wide, so the disabled case runs first.
	disabled := NewServer(ServerConfig{})
	assert.Equal(t, 9090, disabled.Port())
	assert.Equal(t, http.StatusServiceUnavailable, get(disabled, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(disabled, "/healthz").Code)

	InitRegistry()
	assert.True(t, IsEnabled())

	enabled := NewServer(ServerConfig{Port: 9191})
	rec := get(enabled, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNoopRequestMetrics(t *testing.T) {
	m := NewNoopRequestMetrics()
	assert.NotPanics(t, func() {
		m.RecordRequest("List", 0, "")
		m.RecordRequestStart("List")
		m.RecordRequestEnd("List")
		m.RecordRetry("List")
		m.RecordRejected("rate_limited")
		m.RecordTransfer("upload", "finished")
		m.SetPendingJobs(3)
	})
}
