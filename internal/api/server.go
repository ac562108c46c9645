// Package api serves the read-only admin API: delivery audit queries,
// entitlement lookups, a health endpoint, and a live event stream. It never
// mutates state; writes happen only through the webhook pipeline.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tollkeep/tollkeep/internal/auth"
	"github.com/tollkeep/tollkeep/internal/config"
	"github.com/tollkeep/tollkeep/internal/delivery"
	"github.com/tollkeep/tollkeep/internal/entitlement"
	"github.com/tollkeep/tollkeep/internal/events"
)

// DeliveryReader lists and fetches recorded webhook deliveries.
type DeliveryReader interface {
	List(ctx context.Context, f delivery.Filter) ([]delivery.Delivery, error)
	Get(ctx context.Context, id string) (delivery.Delivery, error)
	Count(ctx context.Context) (int64, error)
}

// EntitlementReader lists entitlements and reports how many are active.
type EntitlementReader interface {
	List(ctx context.Context, f entitlement.Filter) ([]entitlement.Entitlement, error)
	CountActive(ctx context.Context) (int64, error)
}

// LedgerReader reports the size of the processed-event ledger.
type LedgerReader interface {
	Count(ctx context.Context) (int64, error)
}

// Config holds API server settings.
type Config struct {
	Listen string
	// APIKey is the legacy full-access token. Empty disables it.
	APIKey string
	Tokens []auth.TokenConfig
}

// FromGlobalConfig extracts API server settings from the global config.
func FromGlobalConfig(ac config.APIConfig) Config {
	cfg := Config{
		Listen: ac.Listen,
		APIKey: ac.Auth.APIKey,
	}
	for _, t := range ac.Auth.Tokens {
		cfg.Tokens = append(cfg.Tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return cfg
}

// Server is the admin API server.
type Server struct {
	config       Config
	deliveries   DeliveryReader
	entitlements EntitlementReader
	ledger       LedgerReader
	hub          *events.Hub
	logger       *slog.Logger
	startTime    time.Time
	openAPI      openAPIDoc
}

// New creates an API server backed by the given stores.
func New(cfg Config, deliveries DeliveryReader, entitlements EntitlementReader, ledger LedgerReader, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:       cfg,
		deliveries:   deliveries,
		entitlements: entitlements,
		ledger:       ledger,
		hub:          hub,
		logger:       logger,
		startTime:    time.Now(),
	}
}

// Start runs the API server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	server := &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No write timeout: /v1/events streams until the client goes away.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin API listening", "addr", s.config.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("api server error: %w", err)
	}
}

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// No auth: load balancers poll this.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.yaml", s.handleOpenAPI)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeDeliveries)).Get("/deliveries", s.handleListDeliveries)
		r.With(s.requireScopes(auth.ScopeDeliveries)).Get("/deliveries/{deliveryID}", s.handleGetDelivery)
		r.With(s.requireScopes(auth.ScopeEntitlements)).Get("/entitlements", s.handleListEntitlements)
		r.With(s.requireScopes(auth.ScopeEvents)).Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}
