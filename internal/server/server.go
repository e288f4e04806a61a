// Package server exposes the scheduler's REST API: job submission and
// inspection, scheduler status, and the administrative shutdown and kill
// operations.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/docsched/internal/agent"
	"github.com/me/docsched/internal/host"
	"github.com/me/docsched/internal/sched"
	"github.com/me/docsched/internal/store"
)

// Server is the scheduler REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	store     store.Store
	core      *sched.Core
	hosts     *host.Registry
	agents    *agent.Registry

	shutdownFn func()     // posts a close request to the event loop
	killFn     func() int // signals every live agent, returns count
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithShutdown sets the function invoked by POST /shutdown.
func WithShutdown(fn func()) Option {
	return func(s *Server) {
		s.shutdownFn = fn
	}
}

// WithKill sets the function invoked by POST /kill.
func WithKill(fn func() int) Option {
	return func(s *Server) {
		s.killFn = fn
	}
}

// New creates a new Server with all routes registered.
func New(st store.Store, core *sched.Core, hosts *host.Registry,
	agents *agent.Registry, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		store:     st,
		core:      core,
		hosts:     hosts,
		agents:    agents,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Health and status
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		// Jobs
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Get("/{id}", s.handleGetJob)
		})

		// Registries
		r.Get("/hosts", s.handleListHosts)
		r.Get("/agents", s.handleListAgents)

		// Administrative
		r.Post("/shutdown", s.handleShutdown)
		r.Post("/kill", s.handleKill)
	})
}
