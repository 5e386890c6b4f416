package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/research"
	"github.com/wehubfusion/Minerva/pkg/state"
)

type stubService struct {
	result  *research.Result
	err     error
	history []state.Message
	histErr error

	lastReq research.Request
}

func (s *stubService) Research(_ context.Context, req research.Request) (*research.Result, error) {
	s.lastReq = req
	return s.result, s.err
}

func (s *stubService) History(_ context.Context, _ string, _ int) ([]state.Message, error) {
	return s.history, s.histErr
}

type statusRecorder struct {
	statuses []string
}

func (r *statusRecorder) RunCompleted(status string) {
	r.statuses = append(r.statuses, status)
}

func newTestHandler(svc *stubService, rec RunRecorder) http.Handler {
	return NewServer(svc, zap.NewNop(), rec).Handler(prometheus.NewRegistry())
}

func TestHandleQuery(t *testing.T) {
	svc := &stubService{result: &research.Result{
		SessionID: "sess-1",
		RunID:     "run-1",
		Report:    "## AAPL",
		Tickers:   []string{"AAPL"},
	}}
	rec := &statusRecorder{}
	handler := newTestHandler(svc, rec)

	req := httptest.NewRequest(http.MethodPost, "/research/query",
		strings.NewReader(`{"query": "What's AAPL price?"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var res research.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "## AAPL", res.Report)
	assert.Equal(t, "What's AAPL price?", svc.lastReq.Query)
	assert.Equal(t, []string{"ok"}, rec.statuses)
}

func TestHandleQueryRejectsEmptyQuery(t *testing.T) {
	handler := newTestHandler(&stubService{}, nil)

	for _, body := range []string{`{"query": "  "}`, `{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/research/query", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestHandleQueryRunFailure(t *testing.T) {
	svc := &stubService{err: errors.New("run aborted")}
	rec := &statusRecorder{}
	handler := newTestHandler(svc, rec)

	req := httptest.NewRequest(http.MethodPost, "/research/query",
		strings.NewReader(`{"query": "What's AAPL price?"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, []string{"error"}, rec.statuses)
}

func TestHandleQueryTimeout(t *testing.T) {
	svc := &stubService{err: context.DeadlineExceeded}
	handler := newTestHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/research/query",
		strings.NewReader(`{"query": "slow one"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestHandleHistory(t *testing.T) {
	svc := &stubService{history: []state.Message{
		{Role: "user", Content: "q1", Timestamp: time.Now()},
		{Role: "assistant", Content: "a1", Timestamp: time.Now()},
	}}
	handler := newTestHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/research/history/sess-1?limit=5", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		SessionID string          `json:"session_id"`
		Messages  []state.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "sess-1", res.SessionID)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "q1", res.Messages[0].Content)
}

func TestHandleHistoryEmptySession(t *testing.T) {
	handler := newTestHandler(&stubService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/research/history/sess-1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messages":[]`)
}

func TestHandleHistoryBadLimit(t *testing.T) {
	handler := newTestHandler(&stubService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/research/history/sess-1?limit=nope", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	handler := newTestHandler(&stubService{}, nil)

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
