// Package server wires the gateway's HTTP surface: routing, CORS,
// request logging, and the handlers that translate HTTP request/response
// bodies to and from the dispatcher. Its layering follows the teacher's
// internal/server package — a thin Server type holding dependencies, a
// routes() method building the chi.Router, ServeHTTP delegating to it —
// generalized from one flat handler file to the gateway's larger surface
// (messages, models, health, metrics).
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/corvidlabs/aigateway/internal/config"
	"github.com/corvidlabs/aigateway/internal/dispatch"
	"github.com/corvidlabs/aigateway/internal/healthcache"
	"github.com/corvidlabs/aigateway/internal/registry"
)

// Server holds the HTTP router and every dependency handlers need.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	dispatch *dispatch.Dispatcher
	registry *registry.Registry
	health   *healthcache.Cache
	logger   zerolog.Logger
	promReg  *prometheus.Registry
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler.
func New(cfg *config.Config, d *dispatch.Dispatcher, reg *registry.Registry, health *healthcache.Cache, promReg *prometheus.Registry, logger zerolog.Logger) *Server {
	s := &Server{cfg: cfg, dispatch: d, registry: reg, health: health, promReg: promReg, logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestTimeoutSeconds) * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/health/providers", s.handleProviderHealth)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/messages", s.handleMessages)

	if s.promReg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	}

	s.router = r
}

// requestLogger is the zerolog-based replacement for the teacher's
// middleware.Logger: same per-request summary line, structured instead
// of printf-formatted.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// ServeHTTP makes Server satisfy http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
