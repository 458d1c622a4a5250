package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const NAMESPACE = "renderer"

// Outcomes of a GM update.
const (
	UPDATE_APPLIED  = "applied"
	UPDATE_INVALID  = "invalid"
	UPDATE_REJECTED = "rejected"
	UPDATE_LIMITED  = "limited"
	UPDATE_FAILED   = "failed"
)

// Metrics collects gateway activity. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections prometheus.Gauge
	sessions    prometheus.GaugeFunc
	joins       *prometheus.CounterVec
	updates     *prometheus.CounterVec
	deliveries  prometheus.Counter
	dropped     prometheus.Counter
	faults      prometheus.Counter
}

// New registers every collector on a fresh registry. sessions reports the
// number of live sessions when scraped.
func New(sessions func() int) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "connections",
			Help:      "Connected realtime clients.",
		}),
		sessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "sessions",
			Help:      "Sessions held in memory.",
		}, func() float64 {
			if sessions == nil {
				return 0
			}
			return float64(sessions())
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "joins_total",
			Help:      "Session join requests by result.",
		}, []string{"result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "gm_updates_total",
			Help:      "GM updates by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "deliveries_total",
			Help:      "Messages handed to client connections.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "dropped_total",
			Help:      "Messages that could not be handed to a client.",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "faults_total",
			Help:      "Event handlers that failed unexpectedly.",
		}),
	}

	registry.MustRegister(
		m.connections,
		m.sessions,
		m.joins,
		m.updates,
		m.deliveries,
		m.dropped,
		m.faults,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) Disconnected() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) Join(ok bool) {
	if m == nil {
		return
	}

	result := "ok"
	if !ok {
		result = "invalid"
	}
	m.joins.WithLabelValues(result).Inc()
}

func (m *Metrics) Update(outcome string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Delivered(ok bool) {
	if m == nil {
		return
	}

	if ok {
		m.deliveries.Inc()
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) Fault() {
	if m == nil {
		return
	}
	m.faults.Inc()
}
