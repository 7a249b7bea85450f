package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
	err error
}

func (f *fakeClock) Now(context.Context) (time.Time, error) {
	return f.now, f.err
}

func TestHealthCheckReportsLedgerTime(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fakeClock{now: time.Now().UTC().Add(-12 * time.Second)}
	h := NewHealthHandler(clock, 2, logger)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["pairs_watched"] != float64(2) {
		t.Errorf("pairs_watched = %v, want 2", resp["pairs_watched"])
	}
	if _, ok := resp["ledger_time"]; !ok {
		t.Error("expected ledger_time in response")
	}
	if lag, ok := resp["ledger_lag_seconds"].(float64); !ok || lag < 11 || lag > 13 {
		t.Errorf("ledger_lag_seconds = %v, want ~12", resp["ledger_lag_seconds"])
	}
}

func TestHealthCheckDegradedWhenLedgerUnreachable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fakeClock{err: errors.New("connection refused")}
	h := NewHealthHandler(clock, 1, logger)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "degraded" || resp["ledger"] != "unreachable" {
		t.Errorf("unexpected response: %v", resp)
	}
}

func TestHealthCheckWithoutClock(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHealthHandler(nil, 0, logger)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if body := rec.Body.String(); !json.Valid([]byte(body)) {
		t.Errorf("invalid JSON body: %s", body)
	}
}
