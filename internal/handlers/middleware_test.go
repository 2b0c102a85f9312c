package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sdko-org/edge-proxy/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitMiddleware(t *testing.T) {
	cfg := &config.Config{RateLimit: 3, RateLimitWindow: time.Minute}
	limited := RateLimitMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.10:50000"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.10:50000"
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different client IP has its own bucket.
	other := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	other.RemoteAddr = "203.0.113.11:50000"
	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	cases := []struct {
		name     string
		xff      string
		realIP   string
		remote   string
		expected string
	}{
		{"remote addr only", "", "", "198.51.100.4:1234", "198.51.100.4"},
		{"x-forwarded-for wins", "203.0.113.1", "", "198.51.100.4:1234", "203.0.113.1"},
		{"first of chain", "203.0.113.1, 10.0.0.1", "", "198.51.100.4:1234", "203.0.113.1"},
		{"x-real-ip fallback", "", "203.0.113.2", "198.51.100.4:1234", "203.0.113.2"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		if tc.xff != "" {
			req.Header.Set("X-Forwarded-For", tc.xff)
		}
		if tc.realIP != "" {
			req.Header.Set("X-Real-IP", tc.realIP)
		}
		assert.Equal(t, tc.expected, getClientIP(req), tc.name)
	}
}
