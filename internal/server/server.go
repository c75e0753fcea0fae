// ABOUTME: HTTP server assembly and lifecycle for the paceline service
// ABOUTME: Wires tenant resolution, authentication, and resource routes

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/paceline/paceline/internal/authn"
	"github.com/paceline/paceline/internal/config"
	"github.com/paceline/paceline/internal/store"
	"github.com/paceline/paceline/internal/tenant"
)

// Server holds the assembled HTTP service and its dependencies.
type Server struct {
	config     *config.Config
	store      store.Store
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the server: opens the store, constructs the authentication
// service and tenant resolver, and mounts all routes.
func New(cfg *config.Config) (*Server, error) {
	logger := slog.Default().With("component", "server")

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	authService, err := authn.New(authn.Config{
		BaseURL:       cfg.Auth.BaseURL,
		RPDisplayName: cfg.Auth.RPDisplayName,
		ChallengeTTL:  cfg.Auth.ChallengeTTL,
	}, st, st, st)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating auth service: %w", err)
	}

	tokens := authn.NewTokenVerifier([]byte(cfg.Auth.TokenSecret))
	authHandler := authn.NewHandler(authService, st, st, tokens, cfg.Auth.SessionTTL)
	resolver := tenant.NewResolver(st)
	activities := newActivityHandler(st)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Route("/auth", authHandler.Routes)
	r.Route("/t/{tenant}", func(r chi.Router) {
		r.Use(resolver.Middleware())
		r.Use(authHandler.RequireUser)
		r.Get("/activities", activities.handleList)
		r.Post("/activities", activities.handleCreate)
	})

	srv := &Server{
		config: cfg,
		store:  st,
		logger: logger,
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	go s.sweepExpiredSessions(ctx)

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// sweepExpiredSessions periodically deletes expired session rows. Challenge
// expiry is enforced at consume time; this only reclaims storage.
func (s *Server) sweepExpiredSessions(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.DeleteExpiredSessions(ctx); err != nil {
				s.logger.Error("failed to sweep expired sessions", "error", err)
			}
		}
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// requestLogger logs completed requests with method, path, and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
