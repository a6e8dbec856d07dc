package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusBadGateway, "level=ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		req := httptest.NewRequest("PATCH", "/api/events/primary:abc", nil)
		req.RemoteAddr = "192.168.1.20:5123"
		h.ServeHTTP(httptest.NewRecorder(), req)

		out := buf.String()
		if !strings.Contains(out, tt.level) {
			t.Errorf("status %d: log %q missing %s", tt.status, out, tt.level)
		}
		for _, want := range []string{"method=PATCH", "path=/api/events/primary:abc", "remote=192.168.1.20"} {
			if !strings.Contains(out, want) {
				t.Errorf("log %q missing %s", out, want)
			}
		}
	}
}

func TestStatusRecorderUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	if sr.Unwrap() != rec {
		t.Error("Unwrap should return the wrapped writer")
	}
	// httptest.ResponseRecorder cannot be hijacked; the error must surface.
	if _, _, err := sr.Hijack(); err == nil {
		t.Error("expected hijack error from a non-hijackable writer")
	}
}
