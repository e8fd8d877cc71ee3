package poolregistry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the registry. All methods are nil-safe so callers can
// run without instrumentation.
type Metrics struct {
	poolsLive         prometheus.Gauge
	poolsCreatedTotal prometheus.Counter
	acquisitionsTotal prometheus.Counter
	exhaustedTotal    prometheus.Counter
	queryErrorsTotal  prometheus.Counter
}

// NewMetrics registers and returns registry metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		poolsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "merchantry",
			Subsystem: "poolregistry",
			Name:      "pools_live",
			Help:      "Number of live tenant connection pools.",
		}),
		poolsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merchantry",
			Subsystem: "poolregistry",
			Name:      "pools_created_total",
			Help:      "Total tenant pools created since process start.",
		}),
		acquisitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merchantry",
			Subsystem: "poolregistry",
			Name:      "acquisitions_total",
			Help:      "Total successful connection acquisitions.",
		}),
		exhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merchantry",
			Subsystem: "poolregistry",
			Name:      "exhausted_total",
			Help:      "Total acquisition timeouts against full pools.",
		}),
		queryErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merchantry",
			Subsystem: "poolregistry",
			Name:      "query_errors_total",
			Help:      "Total backend-reported query failures.",
		}),
	}
	reg.MustRegister(m.poolsLive, m.poolsCreatedTotal, m.acquisitionsTotal, m.exhaustedTotal, m.queryErrorsTotal)
	return m
}

func (m *Metrics) poolCreated() {
	if m == nil {
		return
	}
	m.poolsLive.Inc()
	m.poolsCreatedTotal.Inc()
}

func (m *Metrics) poolEvicted() {
	if m == nil {
		return
	}
	m.poolsLive.Dec()
}

func (m *Metrics) connAcquired() {
	if m == nil {
		return
	}
	m.acquisitionsTotal.Inc()
}

func (m *Metrics) poolExhausted() {
	if m == nil {
		return
	}
	m.exhaustedTotal.Inc()
}

func (m *Metrics) queryFailed() {
	if m == nil {
		return
	}
	m.queryErrorsTotal.Inc()
}
