package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics counts reservation outcomes and ledger rejections.
type InventoryMetrics struct {
	transitions  *prometheus.CounterVec
	expired      prometheus.Counter
	insufficient *prometheus.CounterVec
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_transitions_total",
		Help: "Reservation state transitions by resulting status.",
	}, []string{"status"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservations_expired_total",
		Help: "Reservations expired by the sweeper or by a late confirm.",
	})
	insufficient := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_insufficient_total",
		Help: "Ledger writes rejected for insufficient stock.",
	}, []string{"operation"})
	reg.MustRegister(transitions, expired, insufficient)
	return &InventoryMetrics{
		transitions:  transitions,
		expired:      expired,
		insufficient: insufficient,
	}
}

// IncTransition records a reservation entering status.
func (m *InventoryMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncExpired records one expired reservation.
func (m *InventoryMetrics) IncExpired() {
	if m == nil || m.expired == nil {
		return
	}
	m.expired.Inc()
}

// IncInsufficient records a rejected ledger operation.
func (m *InventoryMetrics) IncInsufficient(operation string) {
	if m == nil || m.insufficient == nil {
		return
	}
	m.insufficient.WithLabelValues(normalizeLabel(operation)).Inc()
}

// HTTPMetrics observes request latency per route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the request histogram on the provided registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	reg.MustRegister(duration)
	return &HTTPMetrics{duration: duration}
}

// Observe records one completed request.
func (m *HTTPMetrics) Observe(method, route, status string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(method, normalizeLabel(route), status).Observe(duration.Seconds())
}

// ConsumerMetrics counts inbound order events by outcome.
type ConsumerMetrics struct {
	events *prometheus.CounterVec
}

// NewConsumerMetrics registers the consumer counter on the provided registerer.
func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_consumed_total",
		Help: "Order events handled by the inventory worker, by type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &ConsumerMetrics{events: events}
}

// Inc records one handled event. Outcome is one of processed, duplicate,
// skipped, rejected or retry.
func (m *ConsumerMetrics) Inc(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
