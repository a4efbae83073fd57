package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/difflog/internal/metrics"
	"github.com/JakeFAU/difflog/internal/store"
)

// StateSource exposes the live replicated state. sinks.ReplicaSink satisfies it.
type StateSource interface {
	State() any
	Frames() int
	Warnings() []string
}

// Server wires HTTP handlers to the live replica and the frame repository.
type Server struct {
	router chi.Router
	state  StateSource
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. state and frames
// may be nil; their routes then answer 503.
func NewServer(state StateSource, frames store.FrameRepository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{state: state, logger: logger}
	sessions := NewSessionHandler(frames, logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Get("/state/warnings", s.getWarnings)
		r.Route("/sessions/{session_id}", func(r chi.Router) {
			r.Get("/frames", sessions.ListFrames)
			r.Get("/state", sessions.GetState)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the baseline frame has been replicated.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.state == nil || s.state.Frames() == 0 {
		s.writeError(w, http.StatusServiceUnavailable, "waiting for baseline")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// getState handles GET /v1/state and returns {"frames": n, "state": {...}}.
func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	if s.state == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no live publisher")
		return
	}
	state := s.state.State()
	if state == nil {
		s.writeError(w, http.StatusServiceUnavailable, "waiting for baseline")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"frames": s.state.Frames(),
		"state":  state,
	})
}

func (s *Server) getWarnings(w http.ResponseWriter, _ *http.Request) {
	if s.state == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no live publisher")
		return
	}
	warnings := s.state.Warnings()
	if warnings == nil {
		warnings = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"warnings": warnings})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Debug("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeError(s.logger, w, status, msg)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
