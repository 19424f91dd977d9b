// Package server exposes the composer over HTTP: a JSON API for turns and
// session management, a websocket chat endpoint, Prometheus metrics, and an
// embedded chat page.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/datakettle/dp-composer/internal/auth"
	"github.com/datakettle/dp-composer/internal/config"
	"github.com/datakettle/dp-composer/internal/orchestrator"
	"github.com/datakettle/dp-composer/internal/store"
	"github.com/datakettle/dp-composer/web"
)

// requestTimeout bounds one REST request end to end, completion call
// included. The websocket route is exempt.
const requestTimeout = 60 * time.Second

// Deps carries what the endpoints need. Authenticator and Gatherer may be
// nil: nil auth serves unauthenticated, nil gatherer falls back to the
// default Prometheus registry.
type Deps struct {
	Orchestrator  *orchestrator.Orchestrator
	Registry      *store.Registry
	Store         store.Store
	Authenticator *auth.Authenticator
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
}

type Server struct {
	Router  *chi.Mux
	Addr    string
	limiter *RateLimiter
	logger  *slog.Logger
	srv     *http.Server
}

// New assembles the router. Middleware order: request id, request logging,
// then per-API-group auth, rate limiting, timeout, and panic recovery. When
// telemetry is on the whole router is wrapped in otelhttp.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handlers{
		orch:     deps.Orchestrator,
		registry: deps.Registry,
		store:    deps.Store,
		logger:   logger,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	if cfg.Telemetry.Enabled {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "dp-composer")
		})
	}

	s := &Server{
		Router: r,
		Addr:   cfg.Addr(),
		logger: logger,
	}
	if cfg.Server.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	}

	r.Route("/v1", func(r chi.Router) {
		if deps.Authenticator != nil {
			r.Use(AuthMiddleware(deps.Authenticator))
		}
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		r.Group(func(r chi.Router) {
			r.Use(TimeoutMiddleware(requestTimeout))
			r.Use(middleware.Recoverer)

			r.Post("/chat", h.handleChat)
			r.Get("/sessions", h.handleListSessions)
			r.Post("/sessions", h.handleCreateSession)
			r.Get("/sessions/{id}", h.handleGetSession)
			r.Delete("/sessions/{id}", h.handleDeleteSession)
			r.Post("/sessions/{id}/reset", h.handleResetSession)
			r.Get("/sessions/{id}/progress", h.handleProgress)
		})

		// The websocket is long-lived, so no timeout middleware here.
		r.With(middleware.Recoverer).Get("/ws", h.handleWebsocket)
	})

	// Liveness, metrics, and the chat page stay outside auth so probes
	// and browsers reach them without credentials.
	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metricsHandler(deps.Gatherer))
	r.Handle("/*", web.Handler())

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving until Shutdown or a listener failure. A clean
// shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping server", slog.String("addr", s.Addr))
	return s.srv.Shutdown(ctx)
}

// Limiter exposes the rate limiter so the runtime can evict idle client
// buckets on its housekeeping ticker. Nil when rate limiting is off.
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
