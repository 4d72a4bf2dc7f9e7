package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	called := false
	mw := CORS([]string{" https://console.example.com "})
	req := httptest.NewRequest(http.MethodGet, "/api/outreach/state", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	called := false
	mw := CORS([]string{"https://console.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/api/outreach/state", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin header, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	mw := CORS([]string{"*"})
	req := httptest.NewRequest(http.MethodOptions, "/api/outreach/email", nil)
	req.Header.Set("Origin", "https://any.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if called {
		t.Fatalf("preflight should not reach the handler")
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("expected allow methods header")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected allow origin header")
	}
}
