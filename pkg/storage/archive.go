package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/state"
)

// ArchivedReport is the JSON document written for each completed run.
type ArchivedReport struct {
	RunID       string                `json:"run_id"`
	SessionID   string                `json:"session_id"`
	Query       string                `json:"query"`
	Intent      string                `json:"intent"`
	Tickers     []string              `json:"tickers"`
	Report      string                `json:"report"`
	Snapshot    *state.InvestorSnapshot `json:"snapshot,omitempty"`
	Metadata    *state.ReportMetadata `json:"metadata,omitempty"`
	NodeErrors  map[string]string     `json:"node_errors,omitempty"`
	ArchivedAt  time.Time             `json:"archived_at"`
}

// Archiver persists completed reports.
type Archiver interface {
	ArchiveReport(ctx context.Context, s *state.WorkflowState) (string, error)
}

// ReportArchive writes one JSON document per run to blob storage under
// reports/<session>/<run>.json.
type ReportArchive struct {
	blobClient BlobStorageClient
	logger     *zap.Logger
}

// NewReportArchive creates an archive over the given blob client.
func NewReportArchive(blobClient BlobStorageClient, logger *zap.Logger) *ReportArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportArchive{blobClient: blobClient, logger: logger}
}

// ReportPath returns the blob path for a run's report.
func ReportPath(sessionID, runID string) string {
	return fmt.Sprintf("reports/%s/%s.json", sessionID, runID)
}

// ArchiveReport serializes the run's final output and uploads it, returning
// the blob URL.
func (a *ReportArchive) ArchiveReport(ctx context.Context, s *state.WorkflowState) (string, error) {
	if a.blobClient == nil {
		return "", fmt.Errorf("blob client not initialized")
	}

	doc := ArchivedReport{
		RunID:      s.RunID,
		SessionID:  s.SessionID,
		Query:      s.Query,
		Intent:     string(s.Intent),
		Tickers:    s.Tickers,
		Report:     s.Report,
		Snapshot:   s.Snapshot,
		Metadata:   s.Metadata,
		NodeErrors: s.NodeErrors,
		ArchivedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode archived report: %w", err)
	}

	url, err := a.blobClient.Upload(ctx, ReportPath(s.SessionID, s.RunID), data, map[string]string{
		"run_id":     s.RunID,
		"session_id": s.SessionID,
		"intent":     string(s.Intent),
	})
	if err != nil {
		return "", err
	}

	a.logger.Debug("report archived",
		zap.String("run_id", s.RunID),
		zap.String("session_id", s.SessionID))
	return url, nil
}

var _ Archiver = (*ReportArchive)(nil)
