package adapter

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/query"
)

// Metrics counts and times collection operations.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nedb",
			Subsystem: "adapter",
			Name:      "operations_total",
			Help:      "Collection operations by model, operation and outcome.",
		}, []string{"model", "operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nedb",
			Subsystem: "adapter",
			Name:      "operation_duration_seconds",
			Help:      "Collection operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"model", "operation"}),
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, query.ErrInvalidCriteria), errors.Is(err, datastore.ErrInvalidQuery):
		return "invalid"
	case errors.Is(err, datastore.ErrConstraintViolated):
		return "conflict"
	case errors.Is(err, datastore.ErrDatastoreBusy):
		return "busy"
	}
	return "error"
}

func (m *Metrics) observe(model, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(model, op, outcome(err)).Inc()
	m.duration.WithLabelValues(model, op).Observe(time.Since(start).Seconds())
}
