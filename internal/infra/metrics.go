package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	Webhooks          *prometheus.CounterVec
	TicketClaims      *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	OutboxDispatched  *prometheus.CounterVec
	PushEvents        *prometheus.CounterVec
	PushSubscribers   prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rafflio_webhooks_total",
			Help: "Payment webhooks received, by outcome.",
		}, []string{"result"}),
		TicketClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rafflio_ticket_claims_total",
			Help: "Ticket claim attempts, by outcome.",
		}, []string{"result"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rafflio_purchase_transitions_total",
			Help: "Purchase status transitions written, by target status.",
		}, []string{"to"}),
		OutboxDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rafflio_outbox_dispatched_total",
			Help: "Outbox rows dispatched, by outcome.",
		}, []string{"result"}),
		PushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rafflio_push_events_total",
			Help: "Push events delivered to local subscribers, by source.",
		}, []string{"source"}),
		PushSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rafflio_push_subscribers",
			Help: "Active push subscriptions on this instance.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Webhooks, m.TicketClaims, m.StatusTransitions,
		m.OutboxDispatched, m.PushEvents, m.PushSubscribers,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncWebhook(result string) {
	if m != nil {
		m.Webhooks.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncClaim(result string) {
	if m != nil {
		m.TicketClaims.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncTransition(to string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) IncOutbox(result string) {
	if m != nil {
		m.OutboxDispatched.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncPush(source string) {
	if m != nil {
		m.PushEvents.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) AddSubscribers(delta float64) {
	if m != nil {
		m.PushSubscribers.Add(delta)
	}
}
