// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bookaway/internal/events"
)

const namespace = "bookaway"

// Metrics holds Prometheus metrics for allocation and season lifecycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// BookingRequests counts booking requests by outcome kind.
	BookingRequests *prometheus.CounterVec

	// BookingDuration is the time spent in the booking transaction.
	BookingDuration prometheus.Histogram

	// Supersessions counts bookings retired by a newer same-priority request.
	Supersessions prometheus.Counter

	// SeasonTransitions counts season status changes by target status.
	SeasonTransitions *prometheus.CounterVec

	// FinalizedBookings counts bookings resolved at close by result.
	FinalizedBookings *prometheus.CounterVec

	// HTTPRequests counts API requests by route and status code.
	HTTPRequests *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		BookingRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_requests_total",
				Help:      "Total number of booking requests by outcome",
			},
			[]string{"outcome"},
		),

		BookingDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "booking_request_duration_seconds",
				Help:      "Time to process a booking request",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
			},
		),

		Supersessions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_supersessions_total",
				Help:      "Total number of bookings superseded by a newer request",
			},
		),

		SeasonTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "season_transitions_total",
				Help:      "Total number of season status transitions",
			},
			[]string{"status"},
		),

		FinalizedBookings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "finalized_bookings_total",
				Help:      "Total number of bookings resolved when a season closes",
			},
			[]string{"result"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"route", "code"},
		),
	}
}

// ObserveBooking records the outcome of a booking request. An empty kind
// means success.
func (m *Metrics) ObserveBooking(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "accepted"
	}
	m.BookingRequests.WithLabelValues(kind).Inc()
	m.BookingDuration.Observe(elapsed.Seconds())
}

// IncHTTP counts one API request.
func (m *Metrics) IncHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// HandleEvent is an events.EventHandler that keeps the lifecycle counters.
func (m *Metrics) HandleEvent(e events.Event) error {
	if m == nil {
		return nil
	}
	switch e.Type {
	case events.SeasonCreated:
		m.SeasonTransitions.WithLabelValues("DRAFT").Inc()
	case events.SeasonOpened:
		m.SeasonTransitions.WithLabelValues("OPEN").Inc()
	case events.SeasonClosed:
		m.SeasonTransitions.WithLabelValues("CLOSED").Inc()
		m.FinalizedBookings.WithLabelValues("booked").Add(float64(len(e.Awarded)))
		m.FinalizedBookings.WithLabelValues("cancelled").Add(float64(len(e.Cancelled)))
	case events.SeasonDeleted:
		m.SeasonTransitions.WithLabelValues("DELETED").Inc()
	case events.BookingSuperseded:
		m.Supersessions.Inc()
	}
	return nil
}

// Subscribe wires HandleEvent into bus.
func (m *Metrics) Subscribe(bus *events.EventBus) {
	bus.Subscribe(m.HandleEvent,
		events.SeasonCreated, events.SeasonOpened, events.SeasonClosed, events.SeasonDeleted,
		events.BookingSuperseded,
	)
}
