// Package relay wires HTTP handlers into a router for the Parley
// application via routing helpers.
package relay

import "github.com/gorilla/mux"

// SetupRoutes configures and returns the application router with the
// health check, WebSocket endpoint, and Prometheus metrics.
func SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", HealthHandler).Methods("GET")
	router.HandleFunc("/ws", WebSocketHandler)
	router.Handle("/metrics", MetricsHandler()).Methods("GET")
	return router
}
