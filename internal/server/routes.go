package server

import (
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/config"
	"github.com/faultlens/faultlens/internal/observability"
	"github.com/faultlens/faultlens/internal/server/handlers"
)

// AdminTokenEnv enables the admin signal endpoint when set.
const AdminTokenEnv = config.EnvPrefix + "_ADMIN_TOKEN"

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.GlobalProbe("", 5*time.Second))
	s.router.Get("/health/live", handlers.GlobalProbe("live", 2*time.Second))
	s.router.Get("/health/ready", handlers.GlobalProbe("ready", 5*time.Second))
	s.router.Get("/health/startup", handlers.GlobalProbe("startup", 3*time.Second))

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.api.Analyze)
		r.Post("/analyze/file", s.api.AnalyzeFile)
		r.Get("/knowledge", s.api.ListKnowledge)
		r.Post("/knowledge", s.api.Train)
		r.Get("/usage", s.api.UsageStatus)
		r.Post("/usage/reset", s.api.ResetUsage)
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	adminToken := os.Getenv(AdminTokenEnv)
	logger := observability.Logger()

	if adminToken == "" {
		logger.Debug("Admin signal endpoint disabled (no " + AdminTokenEnv + " set)")
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,  // per minute
		RateBurst: 5,
		Manager:   nil, // global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	logger.Info("Admin signal endpoint enabled",
		zap.String("path", "/admin/signal"),
		zap.String("auth", "bearer token"),
		zap.String("rate_limit", "10/min, burst 5"))
	logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
}
