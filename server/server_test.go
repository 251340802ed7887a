package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lunebot/tempchan/channel"
	"github.com/lunebot/tempchan/lifecycle"
)

type stubEngine struct {
	stats    lifecycle.Status
	lastTick time.Time
}

func (s *stubEngine) Stats() lifecycle.Status { return s.stats }
func (s *stubEngine) LastTick() time.Time     { return s.lastTick }

func newTestMux(engine Engine, ready bool) http.Handler {
	return NewMux(engine, func() bool { return ready }, time.Minute)
}

func TestHealthz(t *testing.T) {
	mux := newTestMux(&stubEngine{}, true)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
}

func TestReadyzGatewayDown(t *testing.T) {
	mux := newTestMux(&stubEngine{lastTick: time.Now()}, false)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode readyz body: %v", err)
	}
	if body["failed_check"] != "gateway" {
		t.Fatalf("failed_check = %q, want gateway", body["failed_check"])
	}
}

func TestReadyzStaleScheduler(t *testing.T) {
	mux := newTestMux(&stubEngine{lastTick: time.Now().Add(-10 * time.Minute)}, true)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["failed_check"] != "scheduler" {
		t.Fatalf("failed_check = %q, want scheduler", body["failed_check"])
	}
}

func TestReadyzOK(t *testing.T) {
	mux := newTestMux(&stubEngine{lastTick: time.Now()}, true)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusPayload(t *testing.T) {
	engine := &stubEngine{
		stats: lifecycle.Status{
			Enabled:        true,
			ActiveChannels: 3,
			LastTick:       time.Now(),
			Deleted:        map[channel.DeleteReason]int{channel.ReasonExpired: 2},
		},
	}
	mux := newTestMux(engine, true)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	var payload struct {
		Enabled        bool           `json:"enabled"`
		ActiveChannels int            `json:"active_channels"`
		Deleted        map[string]int `json:"deleted"`
		UptimeSeconds  int64          `json:"uptime_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !payload.Enabled || payload.ActiveChannels != 3 {
		t.Fatalf("unexpected status payload: %+v", payload)
	}
	if payload.Deleted["expired"] != 2 {
		t.Fatalf("deleted[expired] = %d, want 2", payload.Deleted["expired"])
	}
}

func TestStatusRejectsPost(t *testing.T) {
	mux := newTestMux(&stubEngine{}, true)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status POST code = %d, want 405", rec.Code)
	}
}

func TestCorrelationHeaderEchoed(t *testing.T) {
	mux := newTestMux(&stubEngine{}, true)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	mux.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Fatalf("correlation header = %q, want corr-123", got)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("expected generated correlation header")
	}
}
