package server

import (
	"net/http/pprof"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/riftproxy/riftproxy/internal/observability"
	"github.com/riftproxy/riftproxy/internal/server/handlers"
	servermw "github.com/riftproxy/riftproxy/internal/server/middleware"
)

func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler(s.opts.Identity, s.opts.Build))
	s.router.Get("/metrics", MetricsHandler(s.opts.MetricsPort))

	if api := s.opts.API; api != nil {
		s.router.Route("/api", func(r chi.Router) {
			r.Use(servermw.Throttle(s.opts.ClientLimiters, "/api"))

			r.Route("/summoners", func(r chi.Router) {
				r.Get("/by-name/{name}", api.SummonerByName)
				r.Get("/by-name/{name}/id", api.SummonerIDByName)
				r.Post("/by-name/{name}/refresh", api.RefreshSummoner)
				r.Get("/{id}", api.SummonerByID)
				r.Get("/{id}/name", api.SummonerNameByID)
				r.Get("/{id}/masteries", api.Masteries)
			})

			r.Get("/champions/random", api.RandomChampion)
			r.Get("/champions/{name}", api.Champion)

			r.Post("/static/refresh", api.RefreshStatic)
			r.Get("/ratelimit", api.RateState)
		})
	}

	s.registerAdminEndpoint()
	s.registerPprof()
}

// registerAdminEndpoint exposes POST /admin/signal when an admin token is
// configured, so operators can trigger reload or shutdown remotely.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}

func (s *Server) registerPprof() {
	if !s.opts.PprofEnabled {
		return
	}
	s.router.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/", pprof.Index)
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
		r.Get("/{profile}", pprof.Index)
	})
}
