// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	controlhttp "github.com/ManuGH/clipgate/internal/control/http"
)

func TestStack_AssignsRequestID(t *testing.T) {
	r := NewRouter(StackConfig{})
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get(controlhttp.HeaderRequestID) == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(controlhttp.HeaderRequestID, "client-abc.1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(controlhttp.HeaderRequestID); got != "client-abc.1" {
		t.Fatalf("expected client request id to be kept, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(controlhttp.HeaderRequestID, "bad id\nwith newline")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(controlhttp.HeaderRequestID); got == "bad id\nwith newline" || got == "" {
		t.Fatalf("expected unsafe request id to be replaced, got %q", got)
	}
}

func TestStack_RecoversPanics(t *testing.T) {
	r := NewRouter(StackConfig{})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected problem json: %v", err)
	}
	if body["code"] != "INTERNAL" || body[controlhttp.JSONKeyRequestID] == "" {
		t.Fatalf("unexpected problem body: %v", body)
	}
}

func TestStack_RateLimit(t *testing.T) {
	r := NewRouter(StackConfig{RateLimit: RateLimitConfig{RequestLimit: 2}})
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "198.51.100.1:1000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
			t.Fatal("expected Retry-After on 429")
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	// Another client has its own budget.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "198.51.100.2:1000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for a different client, got %d", w.Code)
	}
}
