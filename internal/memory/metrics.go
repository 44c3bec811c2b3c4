package memory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dogkeeper886/mem0/internal/apperr"
)

// Metrics exposes Prometheus collectors for memory operations.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// MustNewMetrics registers the memory collectors with reg. Registering twice
// against the same registry reuses the existing collectors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claude_memory",
			Name:      "operations_total",
			Help:      "Memory operations by outcome.",
		},
		[]string{"op", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claude_memory",
			Name:      "operation_duration_seconds",
			Help:      "Latency of memory operations, including backend calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	if err := reg.Register(operations); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		operations = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(duration); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}

	return &Metrics{operations: operations, duration: duration}
}

// observe records one finished operation. It takes a pointer so it can be
// deferred before the named error result is set. A nil receiver is a no-op.
func (m *Metrics) observe(op string, start time.Time, errp *error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, statusLabel(*errp)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := apperr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
