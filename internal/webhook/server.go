package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tollkeep/tollkeep/internal/delivery"
	"github.com/tollkeep/tollkeep/internal/event"
	"github.com/tollkeep/tollkeep/internal/events"
	"github.com/tollkeep/tollkeep/internal/signature"
)

// Server represents the webhook HTTP server.
type Server struct {
	config     Config
	verifier   *signature.Verifier
	dispatcher Dispatcher
	recorder   DeliveryRecorder
	hub        *events.Hub
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new webhook server instance.
func New(config Config, dispatcher Dispatcher, recorder DeliveryRecorder, hub *events.Hub, logger *slog.Logger) *Server {
	// Apply defaults
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = DefaultSignatureHeader
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}

	return &Server{
		config:     config,
		verifier:   signature.NewVerifier(config.Secret, config.Tolerance),
		dispatcher: dispatcher,
		recorder:   recorder,
		hub:        hub,
		logger:     logger,
	}
}

// Handler returns the configured HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "path", s.config.Path)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.config.Path, s.handleWebhook)

	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Log request (no body content for security)
		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleWebhook runs one delivery through the receiving pipeline: collect
// the raw body, verify its signature, decode the envelope, dispatch to the
// event's handler, respond. Every request lands exactly one row in the
// delivery log, whatever its fate.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d := delivery.Delivery{
		RemoteAddr: r.RemoteAddr,
		ReceivedAt: time.Now().UTC(),
	}

	body, err := collectBody(r, s.config.MaxBodySize)
	if err != nil {
		s.logger.Warn("webhook body rejected",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		s.fail(ctx, w, err, d)
		return
	}
	d.BodySize = int64(len(body))

	headerValue := r.Header.Get(s.config.SignatureHeader)
	if headerValue == "" {
		s.logger.Warn("webhook signature missing",
			"header", s.config.SignatureHeader,
			"remote_addr", r.RemoteAddr,
		)
		s.fail(ctx, w, errMissingSignature, d)
		return
	}

	if err := s.verifier.Verify(body, headerValue); err != nil {
		s.logger.Warn("webhook signature verification failed",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		s.fail(ctx, w, err, d)
		return
	}

	// Authentic from here on; the payload is safe to persist.
	d.Payload = body

	ev, err := event.Parse(body)
	if err != nil {
		s.logger.Warn("webhook payload undecodable", "error", err)
		s.fail(ctx, w, err, d)
		return
	}
	d.EventID = ev.ID
	d.EventType = ev.Type

	outcome, err := s.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		if errors.Is(err, event.ErrMalformedPayload) {
			s.logger.Warn("webhook event object undecodable",
				"event_id", ev.ID,
				"event_type", ev.Type,
				"error", err,
			)
		} else {
			s.logger.Error("webhook dispatch failed",
				"event_id", ev.ID,
				"event_type", ev.Type,
				"error", err,
			)
		}
		s.fail(ctx, w, err, d)
		return
	}

	d.Outcome = string(outcome.Kind)
	d.StatusCode = statusFor(outcome, s.config.StrictIgnores)
	d.Message = outcome.Message

	s.logger.Info("webhook delivery handled",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"outcome", d.Outcome,
		"message", d.Message,
		"status", d.StatusCode,
	)

	s.finish(ctx, w, d, Response{Received: true, Message: d.Message})
}

// fail records and answers a delivery that never reached a handler verdict.
func (s *Server) fail(ctx context.Context, w http.ResponseWriter, err error, d delivery.Delivery) {
	f := classify(err)
	d.Outcome = f.class
	d.StatusCode = f.status
	d.Message = f.message
	s.finish(ctx, w, d, Response{Received: false, Message: f.message})
}

// finish persists the audit row, announces it on the hub, and writes the
// response. Recording problems are logged, never surfaced to the caller.
func (s *Server) finish(ctx context.Context, w http.ResponseWriter, d delivery.Delivery, resp Response) {
	id, err := s.recorder.Record(ctx, d)
	if err != nil {
		s.logger.Error("record delivery failed", "error", err)
	}

	if s.hub != nil {
		s.hub.Publish(events.TypeDeliveryReceived, events.DeliveryNotice{
			DeliveryID: id,
			EventID:    d.EventID,
			EventType:  d.EventType,
			Outcome:    d.Outcome,
			StatusCode: d.StatusCode,
			Message:    d.Message,
		})
	}

	s.respondJSON(w, d.StatusCode, resp)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
