package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/gatewatch/internal/web/handlers"
	"github.com/kozaktomas/gatewatch/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	sessionHandler := handlers.NewSessionHandler(s.deps.Session)
	exitsHandler := handlers.NewExitsHandler(s.deps.Session, s.deps.Exits, s.config.Exits.Location())
	streamHandler := handlers.NewStreamHandler(s.deps.Session, middleware.CheckOrigin())
	configHandler := handlers.NewConfigHandler(s.config, s.deps.Gallery)
	readyHandler := handlers.NewReadyHandler(s.deps.Inference)
	requireToken := middleware.RequireToken(s.config.Web.APIToken)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Get("/api/v1/ready", readyHandler.Get)

	// Frame stream and legacy endpoints
	s.router.Group(func(r chi.Router) {
		r.Use(requireToken)

		r.Get("/ws/frames", streamHandler.Serve)
		r.Post("/reset", sessionHandler.Reset)
		r.Get("/get_exits", exitsHandler.Pending)
		r.Get("/get_all_exits", exitsHandler.ListLegacy)
	})

	// SSE feed, no request timeout
	s.router.With(requireToken).Get("/api/v1/exits/events", s.deps.Feed.Events)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(requireToken)
		r.Use(chiMiddleware.Timeout(time.Minute))

		// Session
		r.Get("/session", sessionHandler.Status)
		r.Post("/session/reset", sessionHandler.Reset)

		// Exits
		r.Get("/exits", exitsHandler.List)
		r.Get("/exits/recent", exitsHandler.Recent)
		r.Post("/exits/pending", exitsHandler.Pending)

		// Config
		r.Get("/config", configHandler.Get)
	})
}
