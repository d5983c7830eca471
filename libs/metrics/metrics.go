package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine holds the collectors the scheduling engine reports to.
type Engine struct {
	Reservations        *prometheus.CounterVec
	Releases            *prometheus.CounterVec
	AvailabilityQueries *prometheus.CounterVec
	Modifications       *prometheus.CounterVec
	InventoryLeaks      prometheus.Counter
	OutboxPublished     prometheus.Counter
	OutboxFailures      prometheus.Counter
	SweptBookings       prometheus.Counter
	registry            *prometheus.Registry
}

// New builds collectors on a private registry so tests can create as many
// instances as they like.
func New(namespace string) *Engine {
	reg := prometheus.NewRegistry()
	e := &Engine{
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Table reservation attempts by result.",
		}, []string{"result"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Table releases by trigger.",
		}, []string{"trigger"}),
		AvailabilityQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_queries_total",
			Help:      "Availability lookups by cache outcome.",
		}, []string{"cache"}),
		Modifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modifications_total",
			Help:      "Modification workflow transitions by outcome.",
		}, []string{"outcome"}),
		InventoryLeaks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_leak_total",
			Help:      "Released capacity that could not be restored after a failed approval.",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events delivered to the broker.",
		}),
		OutboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_failures_total",
			Help:      "Outbox batches that failed to publish.",
		}),
		SweptBookings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abandoned_bookings_total",
			Help:      "Bookings abandoned by the checkout sweeper.",
		}),
		registry: reg,
	}
	reg.MustRegister(
		e.Reservations,
		e.Releases,
		e.AvailabilityQueries,
		e.Modifications,
		e.InventoryLeaks,
		e.OutboxPublished,
		e.OutboxFailures,
		e.SweptBookings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Handler serves the registry in the Prometheus text format.
func (e *Engine) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Registry exposes the underlying registry (used by tests to gather values).
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}
