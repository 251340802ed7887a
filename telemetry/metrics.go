// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChannelsCreated   prometheus.Counter
	ChannelsDeleted   *prometheus.CounterVec // label: reason
	ExtensionsApplied prometheus.Counter
	WarningsSent      *prometheus.CounterVec // label: kind (expiry|inactivity)
	RenamesIssued     prometheus.Counter
	PlatformErrors    *prometheus.CounterVec // label: op
	CreationsDenied   *prometheus.CounterVec // label: reason (cooldown|max_channels|disabled)

	// Gauges
	ActiveChannelsGauge prometheus.Gauge
	EnabledGauge        prometheus.Gauge // 1=creation enabled, 0=disabled

	// Histograms (seconds)
	TickDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChannelsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "tempchan_channels_created_total", Help: "Number of temp channels created"})
		ChannelsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tempchan_channels_deleted_total", Help: "Number of temp channels deleted by reason"}, []string{"reason"})
		ExtensionsApplied = promauto.NewCounter(prometheus.CounterOpts{Name: "tempchan_extensions_total", Help: "Number of applied lifetime extensions"})
		WarningsSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tempchan_warnings_sent_total", Help: "Number of expiry/inactivity warnings sent"}, []string{"kind"})
		RenamesIssued = promauto.NewCounter(prometheus.CounterOpts{Name: "tempchan_renames_total", Help: "Number of countdown rename calls issued"})
		PlatformErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tempchan_platform_errors_total", Help: "Number of platform call failures by operation"}, []string{"op"})
		CreationsDenied = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tempchan_creations_denied_total", Help: "Number of denied creation attempts by reason"}, []string{"reason"})
		ActiveChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "tempchan_active_channels", Help: "Current number of tracked temp channels"})
		EnabledGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "tempchan_enabled", Help: "Temp channel creation enabled=1 disabled=0"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tempchan_tick_duration_seconds", Help: "Scheduler tick pass duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// SetActiveChannels records the current tracked channel count.
func SetActiveChannels(n int) {
	if ActiveChannelsGauge != nil {
		ActiveChannelsGauge.Set(float64(n))
	}
}

// SetEnabled mirrors the creation toggle into the gauge.
func SetEnabled(enabled bool) {
	if EnabledGauge != nil {
		if enabled {
			EnabledGauge.Set(1)
		} else {
			EnabledGauge.Set(0)
		}
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
