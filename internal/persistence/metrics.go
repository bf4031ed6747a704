package persistence

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors shared by every repository instance.
// A nil *Metrics records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	transactions *prometheus.CounterVec
}

// NewMetrics creates and registers the repository collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_operations_total",
				Help: "Total number of repository operations by outcome.",
			},
			[]string{"kind", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repository_operation_duration_seconds",
				Help:    "Duration of repository operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "operation"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_transactions_total",
				Help: "Total number of finished repository transactions.",
			},
			[]string{"kind", "outcome"},
		),
	}

	for _, c := range []prometheus.Collector{m.operations, m.duration, m.transactions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(kind, op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind, op, outcome(err)).Inc()
	m.duration.WithLabelValues(kind, op).Observe(elapsed.Seconds())
}

func (m *Metrics) transaction(kind, result string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(kind, result).Inc()
}

// outcome labels err: "ok", the reason code, or "error".
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if r, ok := ReasonOf(err); ok {
		return r.Code()
	}
	if errors.Is(err, ErrClosed) {
		return "closed"
	}
	return "error"
}
