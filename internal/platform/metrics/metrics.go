package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventQueue is the view of the event buffer the daemon exports.
type EventQueue interface {
	Len() int
	Dropped() int64
}

// Metrics holds the daemon-level gauges and counters that sit outside the
// ledger: event pipeline depth and dependency health.
type Metrics struct {
	HealthChecks *prometheus.CounterVec
	ForwardFails prometheus.Counter
}

// New registers the daemon metrics with reg and exports the queue depth and
// overflow count of queue.
func New(reg prometheus.Registerer, queue EventQueue) *Metrics {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "coldchain_event_buffer_depth",
		Help: "Events waiting in the buffer for the publisher",
	}, func() float64 { return float64(queue.Len()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "coldchain_event_buffer_overflow_total",
		Help: "Events evicted from a full buffer before they were published",
	}, func() float64 { return float64(queue.Dropped()) })

	return &Metrics{
		HealthChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coldchain_health_checks_total",
			Help: "Dependency health checks by dependency and result",
		}, []string{"dependency", "result"}),
		ForwardFails: f.NewCounter(prometheus.CounterOpts{
			Name: "coldchain_event_forward_failures_total",
			Help: "Events the publisher worker failed to deliver",
		}),
	}
}

func (m *Metrics) RecordHealthCheck(name string, healthy bool) {
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	m.HealthChecks.WithLabelValues(name, result).Inc()
}
