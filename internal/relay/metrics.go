// Package relay exposes Prometheus instrumentation for the hub: client
// and room gauges plus counters for relayed messages and heartbeat
// evictions.
package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_connected_clients",
		Help: "Number of currently registered client connections.",
	})

	metricActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_active_rooms",
		Help: "Number of rooms currently held in the registry.",
	})

	metricMessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_messages_relayed_total",
		Help: "Total chat messages accepted and broadcast to a room.",
	})

	metricHeartbeatEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_heartbeat_evictions_total",
		Help: "Total connections terminated by the heartbeat sweep.",
	})
)

// MetricsHandler exposes Prometheus metrics for scraping.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
