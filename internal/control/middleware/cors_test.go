// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_WildcardReflectsOrigin(t *testing.T) {
	cors := CORS([]string{"*"})(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	cors.ServeHTTP(w, req)

	if val := w.Header().Get("Access-Control-Allow-Origin"); val != "http://example.com" {
		t.Errorf("expected reflected origin http://example.com, got %q", val)
	}
	if val := w.Header().Get("Vary"); !strings.Contains(val, "Origin") {
		t.Errorf("expected Vary header to contain Origin, got %q", val)
	}
	if val := w.Header().Get("Access-Control-Allow-Credentials"); val != "" {
		t.Errorf("credentials must never be allowed, got %q", val)
	}

	req = httptest.NewRequest("GET", "/test", nil)
	w = httptest.NewRecorder()
	cors.ServeHTTP(w, req)
	if val := w.Header().Get("Access-Control-Allow-Origin"); val != "" {
		t.Errorf("expected no Access-Control-Allow-Origin when Origin header is missing, got %q", val)
	}
}

func TestCORS_SpecificOrigin(t *testing.T) {
	cors := CORS([]string{"http://trusted.com/"})(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://trusted.com")
	w := httptest.NewRecorder()
	cors.ServeHTTP(w, req)
	if val := w.Header().Get("Access-Control-Allow-Origin"); val != "http://trusted.com" {
		t.Errorf("expected http://trusted.com, got %q", val)
	}

	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://evil.com")
	w = httptest.NewRecorder()
	cors.ServeHTTP(w, req)
	if val := w.Header().Get("Access-Control-Allow-Origin"); val != "" {
		t.Errorf("expected empty Access-Control-Allow-Origin for untrusted request, got %q", val)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	cors := CORS([]string{"http://trusted.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/download", nil)
	req.Header.Set("Origin", "http://trusted.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	cors.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if called {
		t.Fatal("preflight must not reach the handler")
	}
	if val := w.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(val, "Content-Disposition") {
		t.Errorf("expected Content-Disposition to be exposed, got %q", val)
	}
}
