package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/ideaforge/internal/artifacts"
	"github.com/jonathan/ideaforge/internal/config"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/server/middleware"
	"github.com/jonathan/ideaforge/internal/server/ratelimit"
	"github.com/jonathan/ideaforge/internal/tracker"
	"github.com/jonathan/ideaforge/internal/types"
)

// DefaultKeepAlive is how often an idle event stream is pinged
const DefaultKeepAlive = 15 * time.Second

// Dispatcher accepts run submissions and lifecycle commands
type Dispatcher interface {
	Submit(ctx context.Context, req types.SubmitRequest) (*types.Run, error)
	Resume(ctx context.Context, runID uuid.UUID) (*types.Run, error)
	Cancel(ctx context.Context, runID uuid.UUID) (*types.Run, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	dispatcher      Dispatcher
	tracker         tracker.Tracker
	store           artifacts.Store
	events          *pipeline.Broadcaster
	health          func() map[string]string
	rateLimiter     *ratelimit.Limiter
	jwtService      *JWTService
	keepAlive       time.Duration
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // zero leaves event streams open indefinitely
	ShutdownTimeout time.Duration
	KeepAlive       time.Duration
	RateLimit       *ratelimit.Config
	JWT             *config.JWTConfig // nil or an empty secret disables authentication
}

// Deps are the collaborators the handlers call
type Deps struct {
	Dispatcher Dispatcher
	Tracker    tracker.Tracker
	Store      artifacts.Store
	Events     *pipeline.Broadcaster
	// Health optionally reports the state of external dependencies
	Health func() map[string]string
	Logger zerolog.Logger
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Dispatcher == nil || deps.Tracker == nil || deps.Store == nil || deps.Events == nil {
		return nil, errors.New("server requires a dispatcher, tracker, artifact store and event broadcaster")
	}

	s := &Server{
		dispatcher:      deps.Dispatcher,
		tracker:         deps.Tracker,
		store:           deps.Store,
		events:          deps.Events,
		health:          deps.Health,
		rateLimiter:     ratelimit.NewLimiter(cfg.RateLimit),
		keepAlive:       cfg.KeepAlive,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          deps.Logger.With().Str("component", "server").Logger(),
	}
	if s.keepAlive <= 0 {
		s.keepAlive = DefaultKeepAlive
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 30 * time.Second
	}
	if cfg.JWT != nil && cfg.JWT.Enabled() {
		s.jwtService = NewJWTService(cfg.JWT)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /runs", s.protect(s.handleSubmitRun))
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.Handle("POST /runs/{id}/resume", s.protect(s.handleResumeRun))
	mux.Handle("POST /runs/{id}/cancel", s.protect(s.handleCancelRun))
	mux.HandleFunc("GET /runs/{id}/events", s.handleRunEvents)
	mux.HandleFunc("GET /runs/{id}/artifacts/{kind}", s.handleGetArtifact)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the complete middleware-wrapped handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.rateLimiter.Stop()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info().Msg("server stopped")
	return nil
}

// Close stops background work without serving; used when Start was never called.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// protect requires a bearer token when authentication is configured
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	if s.jwtService == nil {
		return h
	}
	return middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(h)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.logger.Warn().Str("client", clientID).Str("path", r.URL.Path).Int("limit", info.Limit).Msg("rate limit exceeded")
			s.rateLimitResponse(w, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging. It keeps
// streaming working by passing Flush through.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		event := s.logger.Info()
		if status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.health != nil {
		body["dependencies"] = s.health()
	}
	s.jsonResponse(w, http.StatusOK, body)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps err to a status code and writes it. Internal errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)

	var conflict *types.ConflictError
	if errors.As(err, &conflict) {
		body := map[string]string{"error": err.Error()}
		if conflict.ExistingRunID != uuid.Nil {
			body["existing_run_id"] = conflict.ExistingRunID.String()
		}
		s.jsonResponse(w, status, body)
		return
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; forwarded headers are not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		seconds := int((info.RetryAfter + time.Second - 1) / time.Second)
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
