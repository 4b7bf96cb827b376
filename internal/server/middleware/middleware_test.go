package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	h := Auth("s3cret", "/api/health")(ok)

	cases := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"missing", "/api/fills", nil, http.StatusUnauthorized},
		{"bearer", "/api/fills", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"api key", "/api/fills", map[string]string{"X-API-Key": "s3cret"}, http.StatusOK},
		{"wrong", "/api/fills", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"basic scheme", "/api/fills", map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized},
		{"public path", "/api/health", nil, http.StatusOK},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, c.path, nil)
		for k, v := range c.header {
			r.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != c.want {
			t.Errorf("%s: status %d, want %d", c.name, rec.Code, c.want)
		}
	}
}

func TestAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/fills", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://desk.example"})(ok)

	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.Header.Set("Origin", "https://desk.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://desk.example" {
		t.Errorf("allowed origin header = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin header = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/fills", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status %d", rec.Code)
	}
}

func TestLoggingRequestID(t *testing.T) {
	var seen string
	h := Logging(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("generated id %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status %d", rec.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != "abc" {
		t.Errorf("caller id not reused: %q", seen)
	}
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func TestRateLimit(t *testing.T) {
	lim := &fakeLimiter{}
	h := RateLimit(lim, 10, 5*time.Second, testLogger())(ok)

	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "5" {
		t.Errorf("limited: status %d retry-after %q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if lim.keys[0] != "api:203.0.113.7" {
		t.Errorf("key = %q", lim.keys[0])
	}

	lim.allow = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("allowed: status %d", rec.Code)
	}

	lim.allow, lim.err = false, errors.New("redis down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("limiter error should fail open, got %d", rec.Code)
	}
}

func TestExtractClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	if got := extractClientIP(r); got != "192.0.2.1" {
		t.Errorf("remote addr: %q", got)
	}
	r.Header.Set("X-Real-IP", "198.51.100.2")
	if got := extractClientIP(r); got != "198.51.100.2" {
		t.Errorf("x-real-ip: %q", got)
	}
}
