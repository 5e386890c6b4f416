// Package httpapi exposes the research workflow over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/research"
	"github.com/wehubfusion/Minerva/pkg/state"
)

// ResearchService is the slice of the run driver the handlers need.
type ResearchService interface {
	Research(ctx context.Context, req research.Request) (*research.Result, error)
	History(ctx context.Context, sessionID string, limit int) ([]state.Message, error)
}

// RunRecorder counts terminal run statuses.
type RunRecorder interface {
	RunCompleted(status string)
}

// Server holds the handler dependencies.
type Server struct {
	svc      ResearchService
	logger   *zap.Logger
	recorder RunRecorder
}

// NewServer builds the handler set. recorder may be nil.
func NewServer(svc ResearchService, logger *zap.Logger, recorder RunRecorder) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, logger: logger, recorder: recorder}
}

// Handler wires the chi router. gatherer serves /metrics; pass nil to use the
// default registry.
func (s *Server) Handler(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if gatherer == nil {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	} else {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/research", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/history/{sessionID}", s.handleHistory)
	})
	return r
}

type queryRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	result, err := s.svc.Research(r.Context(), research.Request{
		SessionID: req.SessionID,
		Query:     req.Query,
	})
	if err != nil {
		s.recordRun("error")
		s.logger.Error("research request failed", zap.Error(err))
		sentry.CaptureException(err)

		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, errorResponse{Error: "research run failed"})
		return
	}

	s.recordRun("ok")
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session id is required"})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	msgs, err := s.svc.History(r.Context(), sessionID, limit)
	if err != nil {
		s.logger.Error("history lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
		return
	}
	if msgs == nil {
		msgs = []state.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   msgs,
	})
}

func (s *Server) recordRun(status string) {
	if s.recorder != nil {
		s.recorder.RunCompleted(status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
