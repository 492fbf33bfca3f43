// Package server exposes the GraphQL settings API, webhooks, health and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/carriersync/internal/graphql"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

const maxGraphQLBytes = 1 << 20

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the carrier service integration.
type Server struct {
	port     int
	resolver *graphql.Resolver
	webhooks http.Handler
	db       Pinger
	gatherer prometheus.Gatherer
	logger   *otelzap.Logger
}

// Config holds server configuration.
type Config struct {
	Port     int
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
}

// New creates a new server instance.
func New(cfg Config, resolver *graphql.Resolver, webhooks http.Handler, db Pinger, logger *otelzap.Logger) *Server {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		port:     cfg.Port,
		resolver: resolver,
		webhooks: webhooks,
		db:       db,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Post("/graphql", s.handleGraphQL)
	r.Post("/webhooks", s.webhooks.ServeHTTP)
	r.Post("/webhooks/*", s.webhooks.ServeHTTP)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/graphql" {
			writeGraphQL(w, http.StatusMethodNotAllowed, graphQLErrors("Method not allowed, use POST"))
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Ctx(ctx).Warn("Database not ready", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req graphql.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGraphQLBytes)).Decode(&req); err != nil {
		writeGraphQL(w, http.StatusBadRequest, graphQLErrors("Invalid JSON: "+err.Error()))
		return
	}

	shop := r.Header.Get("X-Shopify-Shop-Domain")
	resp := s.resolver.Execute(r.Context(), shop, req)

	status := http.StatusOK
	if resp.Data == nil {
		status = http.StatusBadRequest
	}
	writeGraphQL(w, status, resp)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Ctx(r.Context()).Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func graphQLErrors(message string) *graphql.Response {
	return &graphql.Response{Errors: gqlerror.List{gqlerror.Errorf("%s", message)}}
}

func writeGraphQL(w http.ResponseWriter, status int, resp *graphql.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
