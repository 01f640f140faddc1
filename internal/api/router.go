package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/opsdeck/notifyd/internal/middleware"
	"go.uber.org/zap"
)

// Router holds all handlers and creates the chi router for the view API
type Router struct {
	feedHandler    *FeedHandler
	healthHandler  *HealthHandler
	viewToken      string
	allowedOrigins []string
	logger         *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	feedHandler *FeedHandler,
	healthHandler *HealthHandler,
	viewToken string,
	allowedOrigins []string,
	logger *zap.Logger,
) *Router {
	return &Router{
		feedHandler:    feedHandler,
		healthHandler:  healthHandler,
		viewToken:      viewToken,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware(rt.allowedOrigins))
	r.Use(chimiddleware.Compress(5))

	// Health endpoint (no auth required)
	r.Get("/health", rt.healthHandler.Health)

	// View API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ViewTokenMiddleware(rt.viewToken))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", rt.feedHandler.List)
			r.Get("/recent", rt.feedHandler.Recent)
			r.Get("/unread-count", rt.feedHandler.UnreadCount)
			r.Post("/{id}/read", rt.feedHandler.MarkRead)
			r.Post("/read-all", rt.feedHandler.MarkAllRead)
		})

		r.Get("/toasts", rt.feedHandler.Toasts)
	})

	return r
}
