package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_AllHealthy(t *testing.T) {
	h := NewHandler("test")
	h.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error { return nil }))
	h.RegisterChecker("broker", NewSimpleChecker("broker", func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", resp.Status)
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(resp.Checks))
	}
	if resp.Version != "test" {
		t.Fatalf("unexpected version: %s", resp.Version)
	}
}

func TestHandler_UnhealthyComponent(t *testing.T) {
	h := NewHandler("test")
	h.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error { return nil }))
	h.RegisterChecker("broker", NewSimpleChecker("broker", func(context.Context) error {
		return errors.New("broker is down")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", resp.Status)
	}
	if resp.Checks["broker"].Message != "broker is down" {
		t.Fatalf("unexpected broker message: %q", resp.Checks["broker"].Message)
	}
}

func TestReadinessHandler(t *testing.T) {
	h := NewHandler("test")
	h.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	h.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error {
		return errors.New("storage is down")
	}))
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
