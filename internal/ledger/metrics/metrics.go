package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the custody ledger.
// Tracks gate outcomes, discards, settlements and transaction latency.
type Metrics struct {
	Transactions        *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	GateChecks          *prometheus.CounterVec
	Discards            *prometheus.CounterVec
	Settlements         prometheus.Counter
	SettledAmount       prometheus.Counter
	InjectionsRecorded  prometheus.Counter
	EventsDropped       prometheus.Counter
}

// New registers the ledger metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coldchain_transactions_total",
			Help: "Ledger transactions by operation and result",
		}, []string{"operation", "result"}),
		TransactionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coldchain_transaction_duration_seconds",
			Help:    "Duration of ledger transactions",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		GateChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coldchain_temperature_checks_total",
			Help: "Temperature gate evaluations by checkpoint and outcome",
		}, []string{"checkpoint", "outcome"}),
		Discards: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coldchain_drugs_discarded_total",
			Help: "Vials discarded by the checkpoint that failed",
		}, []string{"checkpoint"}),
		Settlements: f.NewCounter(prometheus.CounterOpts{
			Name: "coldchain_settlements_total",
			Help: "Courier payments settled",
		}),
		SettledAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "coldchain_settled_amount_total",
			Help: "Sum of courier payments settled",
		}),
		InjectionsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "coldchain_injections_recorded_total",
			Help: "Injections recorded against trial patients",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "coldchain_events_dropped_total",
			Help: "Ledger events that could not be handed to the event sink",
		}),
	}
}

// ObserveTransaction records the outcome and duration of one ledger transaction.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransaction(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Transactions.WithLabelValues(operation, result).Inc()
	m.TransactionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordGateCheck(checkpoint string, passed bool) {
	outcome := "pass"
	if !passed {
		outcome = "fail"
		m.Discards.WithLabelValues(checkpoint).Inc()
	}
	m.GateChecks.WithLabelValues(checkpoint, outcome).Inc()
}

func (m *Metrics) RecordSettlement(amount float64) {
	m.Settlements.Inc()
	m.SettledAmount.Add(amount)
}
