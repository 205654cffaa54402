// Package server exposes a pipeline controller over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leappipe/internal/catalog"
	"github.com/leapstack-labs/leappipe/internal/engine"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// Config holds configuration for the API server.
type Config struct {
	// Addr is the listen address, e.g. ":8000"
	Addr string
	// Controller executes pipelines
	Controller *engine.Controller
	// Store holds run history (optional, run endpoints answer 503 without it)
	Store core.Store
	// Catalog serves the node-type catalog (optional, built-in catalog if nil)
	Catalog *catalog.Handler
	// StrictCycles makes the validate endpoint reject cyclic graphs
	StrictCycles bool
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Server is the pipeline API server.
type Server struct {
	addr       string
	controller *engine.Controller
	store      core.Store
	catalog    *catalog.Handler
	strict     bool
	logger     *slog.Logger
}

// New creates a new API server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.NewHandler(nil, 0, logger)
	}
	return &Server{
		addr:       cfg.Addr,
		controller: cfg.Controller,
		store:      cfg.Store,
		catalog:    cat,
		strict:     cfg.StrictCycles,
		logger:     logger,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.SetHeader("Access-Control-Allow-Origin", "*"),
	)

	s.catalog.Routes(r)

	r.Route("/api", func(r chi.Router) {
		r.Post("/edges/check", s.CheckEdge)

		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/validate", s.Validate)
			r.Post("/order", s.Order)
			r.Post("/execute", s.Execute)
			r.Post("/stop", s.Stop)
			r.Post("/reset", s.Reset)
			r.Get("/state", s.State)
			r.Get("/events", s.Events)
		})

		r.Get("/runs", s.ListRuns)
		r.Get("/runs/{id}", s.GetRun)
	})

	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting API server", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
