// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MutationsTotal      *prometheus.CounterVec // labels: op, result
	InteractionsTotal   *prometheus.CounterVec // labels: kind
	SweepsTotal         prometheus.Counter
	SweepsRemoving      prometheus.Counter
	PanelPushes         prometheus.Counter
	PanelPushesSkipped  prometheus.Counter
	PanelPushFailures   *prometheus.CounterVec // labels: class
	PersistenceFailures prometheus.Counter

	// Histograms (seconds)
	ReconcileDuration prometheus.Observer
	PushDuration      prometheus.Observer

	// Gauges
	ActiveEntriesGauge prometheus.Gauge
	PanelActiveGauge   prometheus.Gauge // 1=active,0=uninitialized
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "availability_mutations_total", Help: "Store mutations by operation and result"}, []string{"op", "result"})
		InteractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "availability_interactions_total", Help: "Chat interactions handled by kind"}, []string{"kind"})
		SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "availability_sweeps_total", Help: "Number of expiry sweeps run"})
		SweepsRemoving = promauto.NewCounter(prometheus.CounterOpts{Name: "availability_sweeps_removing_total", Help: "Number of sweeps that removed at least one expired entry"})
		PanelPushes = promauto.NewCounter(prometheus.CounterOpts{Name: "availability_panel_pushes_total", Help: "Number of successful panel edits"})
		PanelPushesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "availability_panel_pushes_skipped_total", Help: "Reconciles that skipped the edit because the panel was unchanged"})
		PanelPushFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "availability_panel_push_failures_total", Help: "Failed panel edits by error class"}, []string{"class"})
		PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "availability_persistence_failures_total", Help: "Failed durable writes"})
		ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "availability_reconcile_duration_seconds", Help: "Sweep + render + push duration seconds", Buckets: prometheus.DefBuckets})
		PushDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "availability_panel_push_duration_seconds", Help: "Panel edit duration seconds", Buckets: prometheus.DefBuckets})
		ActiveEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "availability_active_entries", Help: "Entries with time remaining at the last reconcile"})
		PanelActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "availability_panel_active", Help: "Panel reference recorded=1 uninitialized=0"})
	})
}

// SetActiveEntries records the active entry count.
func SetActiveEntries(n int) {
	if ActiveEntriesGauge != nil {
		ActiveEntriesGauge.Set(float64(n))
	}
}

// SetPanelActive sets the panel gauge to 1 if active else 0.
func SetPanelActive(active bool) {
	if PanelActiveGauge == nil {
		return
	}
	if active {
		PanelActiveGauge.Set(1)
	} else {
		PanelActiveGauge.Set(0)
	}
}

// CountMutation increments the mutation counter for op with result "ok" or "error".
func CountMutation(op string, err error) {
	if MutationsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	MutationsTotal.WithLabelValues(op, result).Inc()
}

// CountInteraction increments the interaction counter for kind.
func CountInteraction(kind string) {
	if InteractionsTotal != nil {
		InteractionsTotal.WithLabelValues(kind).Inc()
	}
}

// Inc increments c if it was initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
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
