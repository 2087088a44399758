package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "delivery_ws_active_connections",
		Help: "Active websocket connections",
	})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "delivery_online_users",
		Help: "Users with at least one live connection",
	})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_events_published_total",
			Help: "Events enqueued to a live connection",
		},
		[]string{"type"},
	)

	// reason is "no_subscriber" or "buffer_full"
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_events_dropped_total",
			Help: "Events that were not enqueued anywhere",
		},
		[]string{"type", "reason"},
	)

	MessagesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_messages_created_total",
			Help: "Messages stored, by ingestion path",
		},
		[]string{"path"},
	)

	MessagesDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_messages_deduplicated_total",
			Help: "Sends reconciled onto an existing message",
		},
		[]string{"path"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_status_transitions_total",
			Help: "Applied message status transitions",
		},
		[]string{"status"},
	)

	InboundRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_inbound_rejected_total",
			Help: "Inbound websocket events rejected before dispatch",
		},
		[]string{"reason"},
	)

	StoreBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "delivery_store_breaker_open",
		Help: "1 when the message store circuit breaker is open",
	})
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
