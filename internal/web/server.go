// Package web provides the JSON HTTP API over the catalog and the import
// pipeline.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/korhy/cookbook/internal/config"
	"github.com/korhy/cookbook/internal/core"
	"github.com/korhy/cookbook/internal/metrics"
	appmw "github.com/korhy/cookbook/internal/web/middleware"
)

// Deps are the collaborators of the server. Store, Catalog and History are
// required; the rest may be nil.
type Deps struct {
	Store    core.Store
	Catalog  core.Catalog
	History  core.RunHistory
	Recorder core.RunRecorder
	Limiter  *core.ImportLimiter
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Pinger   Pinger
	Logger   *slog.Logger
}

// Server is the HTTP server for the catalog API.
type Server struct {
	deps   Deps
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
}

// NewServer wires routes and middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Limiter == nil {
		deps.Limiter = core.NewImportLimiter(1)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger(s.observer()))
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

// observer avoids storing a typed nil in the interface.
func (s *Server) observer() appmw.RequestObserver {
	if s.deps.Metrics == nil {
		return nil
	}
	return s.deps.Metrics
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		// Imports run under their own deadline, not the request timeout.
		r.With(appmw.APIKeyAuth(s.cfg.Security)).Post("/imports", s.handleStartImport)

		r.Group(func(r chi.Router) {
			if t := s.cfg.Server.RequestTimeout; t > 0 {
				r.Use(middleware.Timeout(t))
			}
			r.Get("/imports/last", s.handleLastImport)
			r.Get("/imports/status", s.handleImportStatus)
			r.Get("/categories", s.handleListCategories)
			r.Get("/recipes", s.handleListRecipes)
			r.Get("/recipes/{id}", s.handleGetRecipe)
		})
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	sc := s.cfg.Server
	s.server = &http.Server{
		Addr:         sc.Addr(),
		Handler:      s.router,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}

	s.deps.Logger.Info("starting server", "addr", sc.Addr())
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for a running import.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.deps.Limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// defaultImportTimeout applies when the config leaves Import.Timeout unset.
const defaultImportTimeout = 30 * time.Minute

// importDeadline bounds one HTTP triggered run.
func (s *Server) importDeadline() time.Duration {
	if d := s.cfg.Import.Timeout; d > 0 {
		return d
	}
	return defaultImportTimeout
}
