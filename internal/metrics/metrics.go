// Package metrics exposes Prometheus metrics for lobby operations and the
// push fanout.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clanforge/backend/internal/apperr"
)

// Collector implements the lobby and hub recorders.
type Collector struct {
	operations       *prometheus.CounterVec
	successfulSquads prometheus.Counter
	events           *prometheus.CounterVec
	dropped          prometheus.Counter
	clients          prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clanforge_lobby_operations_total",
			Help: "Lobby operations by name and outcome.",
		}, []string{"op", "result"}),
		successfulSquads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clanforge_successful_squads_total",
			Help: "Lobbies that reached capacity since process start.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clanforge_events_broadcast_total",
			Help: "Events broadcast to connected clients by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clanforge_events_dropped_total",
			Help: "Event deliveries dropped because a client was too slow.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clanforge_connected_clients",
			Help: "Currently connected push clients.",
		}),
	}

	reg.MustRegister(
		c.operations,
		c.successfulSquads,
		c.events,
		c.dropped,
		c.clients,
	)

	return c
}

// RecordOperation counts one lobby operation. result is "ok" or the error kind.
func (c *Collector) RecordOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	c.operations.WithLabelValues(op, result).Inc()
}

func (c *Collector) RecordSuccessfulSquad() {
	c.successfulSquads.Inc()
}

func (c *Collector) RecordBroadcast(event string) {
	c.events.WithLabelValues(event).Inc()
}

func (c *Collector) RecordDropped() {
	c.dropped.Inc()
}

func (c *Collector) SetClients(n int) {
	c.clients.Set(float64(n))
}

// Handler returns the HTTP handler for Prometheus scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
