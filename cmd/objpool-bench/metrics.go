package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// poolMetrics tracks allocate/free activity for one running pool. Unlike the
// pool package itself, this lives entirely outside the hot path: workers
// report into it after the fact, not from inside Allocate/Free.
type poolMetrics struct {
	allocations  *prometheus.CounterVec
	fallbacks    prometheus.Counter
	frees        prometheus.Counter
	reservedGap  prometheus.Gauge
}

func newPoolMetrics(reg prometheus.Registerer, poolName string) *poolMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"pool": poolName}

	return &poolMetrics{
		allocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "objpool",
			Name:        "allocations_total",
			Help:        "Total Allocate calls, partitioned by whether they came from the ring or the heap fallback.",
			ConstLabels: labels,
		}, []string{"source"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "objpool",
			Name:        "fallback_allocations_total",
			Help:        "Allocations that overflowed the ring and fell back to the heap.",
			ConstLabels: labels,
		}),
		frees: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "objpool",
			Name:        "frees_total",
			Help:        "Total Free calls.",
			ConstLabels: labels,
		}),
		reservedGap: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "objpool",
			Name:        "reserved_minus_consumed",
			Help:        "Difference between the reserved and consumed tickets; the number of slots currently checked out.",
			ConstLabels: labels,
		}),
	}
}

func (m *poolMetrics) recordAllocate(fromPool bool) {
	if fromPool {
		m.allocations.WithLabelValues("ring").Inc()
		return
	}
	m.allocations.WithLabelValues("heap").Inc()
	m.fallbacks.Inc()
}

func (m *poolMetrics) recordFree() {
	m.frees.Inc()
}

func (m *poolMetrics) observeGap(reserved, consumed uint64) {
	m.reservedGap.Set(float64(reserved - consumed))
}
