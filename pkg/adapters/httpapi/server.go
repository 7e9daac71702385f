// Package httpapi exposes the agent over a JSON HTTP API: session
// lifecycle, conversational turns, history, and graph introspection.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pennywise "github.com/pennywise-ai/pennywise"
	"github.com/pennywise-ai/pennywise/internal/logging"
	"github.com/pennywise-ai/pennywise/internal/presentation/graph"
	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// Server routes HTTP requests onto the agent facade.
type Server struct {
	agent   *pennywise.Agent
	logger  *slog.Logger
	metrics http.Handler
}

// ServerOption configures the HTTP surface.
type ServerOption func(*Server)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts a handler at GET /metrics, typically
// promhttp.HandlerFor over the process registry.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// NewHandler builds the full HTTP handler for the agent.
func NewHandler(agent *pennywise.Agent, opts ...ServerOption) http.Handler {
	s := &Server{
		agent:  agent,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Get("/graph", s.renderGraph)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/", s.listSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.sessionInfo)
			r.Delete("/", s.deleteSession)
			r.Get("/history", s.history)
			r.Post("/turns", s.turn)
		})
	})
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", s.metrics)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TurnRequest is the body of POST /sessions/{id}/turns.
type TurnRequest struct {
	Message string `json:"message"`
	Entry   string `json:"entry,omitempty"`
}

// TurnResponse is the outcome of one turn.
type TurnResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
	Steps     int    `json:"steps"`
	Version   uint64 `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.agent.CreateSession(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(id)})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.agent.Sessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) sessionInfo(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "sessionID"))
	info, err := s.agent.Session(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "sessionID"))
	if err := s.agent.CloseSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "sessionID"))
	snaps, err := s.agent.History(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": snaps})
}

func (s *Server) turn(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "sessionID"))

	var body TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if body.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	var (
		res *pennywise.TurnResult
		err error
	)
	if body.Entry != "" {
		res, err = s.agent.TurnAt(r.Context(), id, body.Entry, body.Message)
	} else {
		res, err = s.agent.Turn(r.Context(), id, body.Message)
	}
	if err != nil {
		s.logger.Warn("turn failed", "session_id", id, "error", err)
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TurnResponse{
		SessionID: string(res.SessionID),
		Answer:    res.Answer,
		Steps:     res.Steps,
		Version:   res.Version,
	})
}

func (s *Server) renderGraph(w http.ResponseWriter, r *http.Request) {
	diagram := graph.GenerateMermaid(s.agent.Steps(), nil)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(diagram))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps domain errors onto HTTP status codes. Conflicts surface
// as 409 so clients can retry the turn; turn deadlines as 504.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTurnTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUnknownStep), errors.Is(err, domain.ErrStepBudgetExceeded):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}
