// Package web serves the RowStore HTTP API.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/rowstore/internal/config"
	"github.com/JonMunkholm/rowstore/internal/core"
	mw "github.com/JonMunkholm/rowstore/internal/web/middleware"
)

// Server is the HTTP front end of a core.Service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	limits  *rateLimiter
}

// NewServer creates a Server with all routes mounted.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
		limits:  newRateLimiter(&cfg.Rate, service.ResolveID),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
	s.router.Use(mw.APIKeyAuth(&s.cfg.Security))
	s.router.Use(mw.JSONP)
}

func (s *Server) setupRoutes() {
	// Monitoring, never rate limited.
	s.router.Get("/status", s.handleStatus)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.service.Registry(), promhttp.HandlerOpts{}))

	s.router.With(s.limits.middleware).Get("/datasets", s.handleListDatasets)
	s.router.Post("/datasets", s.handleCreateDataset)

	s.router.Route("/dataset/{id}", func(r chi.Router) {
		r.Use(s.limits.middleware)

		r.Get("/", s.handleQuery)
		r.Post("/", s.handleAppend)
		r.Put("/", s.handleReplace)
		r.Delete("/", s.handleDelete)

		r.Get("/info", s.handleInfo)
		r.Get("/csv", s.handleExportCSV)

		r.Get("/aliases", s.handleListAliases)
		r.Post("/aliases", s.handleAddAliases)
		r.Put("/aliases", s.handleReplaceAliases)
		r.Delete("/aliases", s.handleDeleteAliases)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, errRouteNotFound, http.StatusNotFound)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, errMethodNotAllowed, http.StatusMethodNotAllowed)
	})
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	go s.limits.run()

	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limits.stop()
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
