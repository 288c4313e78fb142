package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openexhibits/tessera-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Device-facing endpoints: exhibit machines carry no credentials.
		r.Post("/heartbeat", s.handleHeartbeat)
		r.Post("/sync/checkin", s.handleSyncCheckIn)

		// Protected control surface
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Change notification counter for long-poll consumers
			r.Get("/clock", s.handleClock)

			// Fleet endpoints
			r.Route("/components", func(r chi.Router) {
				r.Get("/", s.handleListComponents)
				r.With(s.requirePermission(auth.PermFleetManage)).Post("/", s.handleCreateComponent)
				r.Get("/stats", s.handleComponentStats)
				// Fleet-wide fan-out: "__all", "__group:<g>" and friends.
				r.With(s.requirePermission(auth.PermFleetOperate)).Post("/command", s.handleFleetCommand)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetComponent)
					r.With(s.requirePermission(auth.PermFleetManage)).Delete("/", s.handleRemoveComponent)
					r.With(s.requirePermission(auth.PermFleetManage)).Post("/rename", s.handleRenameComponent)
					r.With(s.requirePermission(auth.PermFleetOperate)).Post("/command", s.handleQueueCommand)
					r.With(s.requirePermission(auth.PermFleetOperate)).Put("/app", s.handleSetApp)
					r.With(s.requirePermission(auth.PermFleetOperate)).Put("/definition", s.handleSetDefinition)
					r.With(s.requirePermission(auth.PermFleetOperate)).Put("/maintenance", s.handleSetMaintenance)
				})
			})

			// Schedule endpoints
			r.Route("/schedule", func(r chi.Router) {
				r.Get("/", s.handleScheduleWindow)
				r.Get("/next", s.handleScheduleNext)
				r.With(s.requirePermission(auth.PermFleetOperate)).Post("/reload", s.handleScheduleReload)

				r.Route("/{day}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermScheduleManage)).Put("/entries", s.handleUpsertScheduleEntry)
					r.With(s.requirePermission(auth.PermScheduleManage)).Delete("/entries/{scheduleID}", s.handleDeleteScheduleEntry)
				})
			})

			// WebSocket (token validated in handler: browsers cannot set
			// Authorization headers on WebSocket upgrades)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status and fleet counts.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"components": stats.Total,
		"by_status":  stats.ByStatus,
	})
}
