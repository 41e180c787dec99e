// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
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
	MessagesToUrbit  prometheus.Counter
	MessagesToIRC    prometheus.Counter
	DroppedSaturated prometheus.Counter
	DecodeFailures   prometheus.Counter
	SinkReconnects   prometheus.Counter
	IRCReconnects    prometheus.Counter

	// Histograms (seconds)
	SendDuration prometheus.Observer

	// Gauges
	QueueDepthGauge  prometheus.Gauge
	InstancesRunning prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesToUrbit = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_messages_to_urbit_total", Help: "Messages relayed from IRC to Urbit"})
		MessagesToIRC = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_messages_to_irc_total", Help: "Messages relayed from Urbit to IRC"})
		DroppedSaturated = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_messages_dropped_saturated_total", Help: "Messages dropped because the relay queue was full"})
		DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_decode_failures_total", Help: "Decode failures observed on Urbit sends or event streams"})
		SinkReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_sink_reconnects_total", Help: "Urbit session reconnects triggered by decode failures"})
		IRCReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_irc_reconnect_attempts_total", Help: "IRC reconnect attempts scheduled by the backoff strategy"})
		SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bridge_send_duration_seconds", Help: "Outbound send duration seconds", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bridge_queue_depth", Help: "Current number of queued relay messages"})
		InstancesRunning = promauto.NewGauge(prometheus.GaugeOpts{Name: "bridge_instances_running", Help: "Number of bridge instances currently running"})
	})
}

// SetQueueDepth records the current relay queue depth.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// ObserveSendDuration records one outbound send duration.
func ObserveSendDuration(d time.Duration) {
	if SendDuration != nil {
		SendDuration.Observe(d.Seconds())
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

// GetCorrelation returns the correlation id or empty string.
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
