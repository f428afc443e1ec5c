// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jeranaias/sprychat/internal/catalog"
	"github.com/jeranaias/sprychat/internal/upstream"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address for the proxy server.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize is the maximum size for request bodies (10MB).
	MaxRequestBodySize = 10 * 1024 * 1024

	// ShutdownTimeout bounds graceful shutdown after a signal.
	ShutdownTimeout = 10 * time.Second

	// Version is the server version.
	Version = "1.0.0"
)

// apiKeyEnvVars lists the environment variables consulted, in order,
// when a request carries no X-API-Key header.
var apiKeyEnvVars = []string{"SPRYCHAT_API_KEY", "OPENROUTE_API_KEY", "OPENAI_API_KEY"}

// ============================================================================
// SERVER
// ============================================================================

// Server is the chat proxy: it relays browser-style requests to an
// OpenAI-compatible upstream, holding no conversation state of its own.
type Server struct {
	addr    string
	router  *http.ServeMux
	server  *http.Server
	limiter *IPRateLimiter
	logger  *log.Logger
}

// New creates a proxy server listening on addr.
// If addr is empty, DefaultAddr is used.
func New(addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:    addr,
		router:  http.NewServeMux(),
		limiter: NewIPRateLimiter(DefaultRateLimit, DefaultRateBurst),
		logger:  log.Default(),
	}

	s.setupRoutes()
	return s
}

// WithLogger sets a custom logger.
func (s *Server) WithLogger(logger *log.Logger) *Server {
	s.logger = logger
	return s
}

// WithRateLimiter sets a custom per-IP rate limiter.
func (s *Server) WithRateLimiter(limiter *IPRateLimiter) *Server {
	s.limiter = limiter
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the fully assembled handler, middleware included.
// Exposed for httptest-based tests.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		CORSMiddleware(DefaultCORSConfig()),
		RateLimitMiddleware(s.limiter),
	)(s.router)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("GET /api/models", s.handleModels)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// ============================================================================
// REQUEST TYPES
// ============================================================================

// ChatProxyRequest is the body of POST /api/chat. Tools are opaque:
// the proxy forwards them to the upstream without interpreting them.
type ChatProxyRequest struct {
	Messages []upstream.ChatMessage `json:"messages"`
	System   string                 `json:"system,omitempty"`
	Tools    []json.RawMessage      `json:"tools,omitempty"`
}

// categoryError is the rejection body for non-chat models, pointing
// the caller at the endpoint that actually serves the model.
type categoryError struct {
	Error             string `json:"error"`
	ModelCategory     string `json:"modelCategory"`
	SuggestedEndpoint string `json:"suggestedEndpoint"`
	Message           string `json:"message"`
}

// ============================================================================
// CREDENTIAL RESOLUTION
// ============================================================================

// requestConfig holds the upstream configuration resolved for one request.
type requestConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Title   string
	Referer string
}

// resolveConfig reads per-request headers with environment fallbacks.
// SECURITY: Headers win over env so a shared deployment can still
// serve per-user keys without storing them.
func resolveConfig(r *http.Request) requestConfig {
	cfg := requestConfig{
		APIKey:  strings.TrimSpace(r.Header.Get("X-API-Key")),
		BaseURL: strings.TrimSpace(r.Header.Get("X-Base-URL")),
		Model:   strings.TrimSpace(r.Header.Get("X-Model")),
		Title:   strings.TrimSpace(r.Header.Get("X-Title")),
		Referer: r.Header.Get("Referer"),
	}

	if cfg.APIKey == "" {
		for _, name := range apiKeyEnvVars {
			if v := os.Getenv(name); v != "" {
				cfg.APIKey = strings.TrimSpace(v)
				break
			}
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("SPRYCHAT_BASE_URL")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("SPRYCHAT_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = upstream.DefaultModel
	}
	if cfg.Referer == "" {
		cfg.Referer = r.Header.Get("Origin")
	}

	return cfg
}

// client builds an upstream client from the resolved configuration.
func (c requestConfig) client() *upstream.Client {
	return upstream.NewClient(upstream.Config{
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
		Title:   c.Title,
		SiteURL: c.Referer,
	})
}

// missingKeyMessage names the header and every env alternative so the
// error is actionable without reading docs.
func missingKeyMessage() string {
	return fmt.Sprintf("missing API key: set the X-API-Key header or one of %s", strings.Join(apiKeyEnvVars, ", "))
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

// handleChat handles POST /api/chat: it validates the model category,
// then relays the upstream SSE byte stream verbatim.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	// RELIABILITY: Bound the request body to prevent memory exhaustion.
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return
		}
		s.logger.Printf("CHAT_BAD_REQUEST | error=%v", err)
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "request must contain at least one message")
		return
	}

	cfg := resolveConfig(r)
	if cfg.APIKey == "" {
		s.writeError(w, http.StatusBadRequest, missingKeyMessage())
		return
	}

	// Non-chat models get a structured rejection naming the endpoint
	// that serves them instead of an opaque upstream error.
	if cat := catalog.Category(cfg.Model); !cat.IsChat() {
		s.writeJSON(w, http.StatusBadRequest, categoryError{
			Error:             fmt.Sprintf("%s models do not support chat completions", cat.Kind),
			ModelCategory:     string(cat.Kind),
			SuggestedEndpoint: cat.Endpoint,
			Message:           fmt.Sprintf("model %q belongs to the %s category and must use the %s endpoint", cfg.Model, cat.Kind, cat.Endpoint),
		})
		return
	}

	messages := req.Messages
	if req.System != "" {
		messages = append([]upstream.ChatMessage{upstream.NewSystemMessage(req.System)}, messages...)
	}

	body, err := cfg.client().OpenStream(r.Context(), upstream.ChatRequest{
		Model:    cfg.Model,
		Messages: messages,
		Tools:    req.Tools,
	})
	if err != nil {
		s.relayUpstreamError(w, err)
		return
	}
	defer body.Close()

	s.relayStream(w, r, body)
}

// relayStream copies the upstream SSE body to the client byte-for-byte,
// flushing after every read so tokens render as they arrive.
func (s *Server) relayStream(w http.ResponseWriter, r *http.Request, body io.Reader) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// STREAMING: Disable nginx proxy buffering, which would otherwise
	// hold chunks until the response completes.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Printf("STREAM_NO_FLUSHER | falling back to buffered copy")
		io.Copy(w, body)
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Client went away; stop reading upstream.
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF && r.Context().Err() == nil {
				s.logger.Printf("STREAM_READ_ERROR | error=%v", err)
			}
			return
		}
	}
}

// relayUpstreamError maps upstream client errors onto proxy responses.
func (s *Server) relayUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *upstream.APIError
	switch {
	case errors.As(err, &apiErr):
		s.writeError(w, apiErr.Status, apiErr.Message)
	case errors.Is(err, upstream.ErrAuthFailed):
		s.writeError(w, http.StatusUnauthorized, "upstream rejected the API key")
	case errors.Is(err, upstream.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, "upstream rate limit exceeded")
	case errors.Is(err, upstream.ErrInsufficientCredits):
		s.writeError(w, http.StatusPaymentRequired, "upstream account has insufficient credits")
	case errors.Is(err, upstream.ErrModelNotFound):
		s.writeError(w, http.StatusNotFound, "model not found upstream")
	default:
		s.logger.Printf("UPSTREAM_ERROR | error=%v", err)
		s.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "upstream request failed",
			"detail": err.Error(),
		})
	}
}

// ============================================================================
// MODELS HANDLER
// ============================================================================

// handleModels handles GET /api/models. Any HTTP response from the
// upstream is relayed as-is, status included; only a transport-level
// failure produces a proxy-originated 502.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	cfg := resolveConfig(r)
	if cfg.APIKey == "" {
		s.writeError(w, http.StatusBadRequest, missingKeyMessage())
		return
	}

	status, body, err := cfg.client().ListModelsRaw(r.Context())
	if err != nil {
		s.logger.Printf("MODELS_PROXY_ERROR | error=%v", err)
		s.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "failed to fetch models from upstream",
			"detail": err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start begins listening on the configured address and blocks until
// the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// WriteTimeout stays zero: SSE relays run for the lifetime of
		// the upstream stream and are bounded by the request context.
	}

	s.logger.Printf("SERVER_START | addr=%s version=%s", s.addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// Run starts the server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully within ShutdownTimeout.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// ListenAndServe returns ErrServerClosed after Shutdown.
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a flat JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
