// Package server wires the vault's admin HTTP surface.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/cardvault/common/middleware"
	"github.com/telhawk-systems/cardvault/vault/internal/handlers"
)

// Permission pairs checked on admin routes.
const (
	resourceAdmin     = "admin"
	operationRead     = "read"
	operationRollback = "rollback"
	operationRestore  = "restore"
)

// Handlers groups the route handlers.
type Handlers struct {
	Health   *handlers.HealthHandler
	Sessions *handlers.SessionHandler
	Rollback *handlers.RollbackHandler
}

// AdminCORS returns the CORS policy for the admin API.
func AdminCORS(origins []string) middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", handlers.SessionHeader},
	}
}

// NewRouter constructs a ServeMux with the admin API registered. Panics in
// handlers are reported to faults.
func NewRouter(h Handlers, gate handlers.Gate, faults FaultReporter, cors middleware.CORSConfig) http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /healthz", h.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Sessions
	mux.HandleFunc("POST /api/v1/sessions", h.Sessions.Login)
	mux.HandleFunc("DELETE /api/v1/sessions", h.Sessions.Logout)

	// Rollback (admin session required)
	require := func(op string, next http.HandlerFunc) http.HandlerFunc {
		return handlers.RequireAccess(gate, resourceAdmin, op)(next)
	}
	mux.HandleFunc("GET /api/v1/rollback/status", require(operationRead, h.Rollback.Status))
	mux.HandleFunc("GET /api/v1/rollback/history", require(operationRead, h.Rollback.History))
	mux.HandleFunc("POST /api/v1/rollback/trigger", require(operationRollback, h.Rollback.Trigger))
	mux.HandleFunc("POST /api/v1/rollback/emergency", require(operationRollback, h.Rollback.Emergency))
	mux.HandleFunc("POST /api/v1/rollback/restore", require(operationRestore, h.Rollback.Restore))

	var handler http.Handler = Recover(faults)(mux)
	if cors.Enabled() {
		handler = middleware.CORS(cors)(handler)
	}
	return middleware.RequestID(handler)
}
