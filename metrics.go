package cloudscript

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. A nil *Metrics is valid
// and records nothing, so embedding without a registry costs nothing.
type Metrics struct {
	Invocations    *prometheus.CounterVec
	Duration       prometheus.Histogram
	ActiveSessions prometheus.Gauge
	BridgeCalls    prometheus.Counter
	AuditFailures  prometheus.Counter
}

// NewMetrics registers the engine metrics on reg. Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &Metrics{
		Invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudscript",
			Subsystem: "engine",
			Name:      "invocations_total",
			Help:      "Script invocations by outcome.",
		}, []string{"outcome"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cloudscript",
			Subsystem: "engine",
			Name:      "invocation_duration_seconds",
			Help:      "Wall-clock duration of script invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudscript",
			Subsystem: "engine",
			Name:      "active_sessions",
			Help:      "Sessions currently executing.",
		}),
		BridgeCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudscript",
			Subsystem: "engine",
			Name:      "bridge_calls_total",
			Help:      "Capability bridge calls made by guest scripts.",
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudscript",
			Subsystem: "engine",
			Name:      "audit_failures_total",
			Help:      "Execution records that could not be persisted.",
		}),
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) sessionFinished(outcome string, d time.Duration, bridgeCalls int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.Invocations.WithLabelValues(outcome).Inc()
	m.Duration.Observe(d.Seconds())
	m.BridgeCalls.Add(float64(bridgeCalls))
}

func (m *Metrics) auditFailed() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}
