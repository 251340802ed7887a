package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lunebot/tempchan/lifecycle"
)

type handlers struct {
	engine        Engine
	gatewayReady  func() bool
	checkInterval time.Duration
	started       time.Time
}

// handleHealthz responds to liveness probe requests. The process is alive if
// it can serve this request at all.
func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz responds to readiness probe requests with detailed checks:
// the gateway session must be connected and the scheduler heartbeat must not
// be stale. A missing heartbeat is tolerated briefly after startup while the
// first pass is still running.
func (h *handlers) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"gateway", func() error {
			if !h.gatewayReady() {
				return fmt.Errorf("gateway session not connected")
			}
			return nil
		}},
		{"scheduler", func() error {
			last := h.engine.LastTick()
			if last.IsZero() {
				if time.Since(h.started) < h.checkInterval {
					return nil
				}
				return fmt.Errorf("scheduler has not completed a pass")
			}
			if stale := time.Since(last); stale > 3*h.checkInterval {
				return fmt.Errorf("scheduler heartbeat stale by %s", stale.Round(time.Second))
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// handleStatus serves the lifecycle snapshot plus process uptime.
func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats := h.engine.Stats()
	payload := struct {
		lifecycle.Status
		UptimeSeconds int64 `json:"uptime_seconds"`
	}{
		Status:        stats,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
