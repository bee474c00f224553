package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeReadyChecker struct {
	ok     bool
	checks map[string]string
}

func (f fakeReadyChecker) Ready() (bool, map[string]string) { return f.ok, f.checks }

func TestHealthHandler(t *testing.T) {
	hs := NewHealthServer(fakeReadyChecker{ok: true})

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{name: "GET request succeeds", method: http.MethodGet, expectedStatus: http.StatusOK},
		{name: "POST request fails", method: http.MethodPost, expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			rec := httptest.NewRecorder()
			hs.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestReadyHandlerReportsReady(t *testing.T) {
	hs := NewHealthServer(fakeReadyChecker{ok: true, checks: map[string]string{"rs": "ok"}})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	hs.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyHandlerReportsNotReady(t *testing.T) {
	hs := NewHealthServer(fakeReadyChecker{ok: false, checks: map[string]string{"rs": "not bootstrapped"}})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	hs.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointIsServed(t *testing.T) {
	hs := NewHealthServer(fakeReadyChecker{ok: true})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	hs.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
