package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/llm"
	"github.com/wehubfusion/Minerva/pkg/marketdata"
	"github.com/wehubfusion/Minerva/pkg/memory"
	"github.com/wehubfusion/Minerva/pkg/state"
	"github.com/wehubfusion/Minerva/pkg/storage"
)

// ErrEmptyReport is the run-fatal failure for a run that finished without
// producing any report text.
var ErrEmptyReport = errors.New("report synthesis produced no text")

// Request is one research query.
type Request struct {
	// SessionID groups runs into a conversation. Empty means a new session.
	SessionID string
	// Query is the natural-language research question.
	Query string
}

// Result is the run driver's response surface.
type Result struct {
	SessionID     string              `json:"session_id"`
	RunID         string              `json:"run_id"`
	Report        string              `json:"report"`
	Tickers       []string            `json:"tickers"`
	ExecutedNodes []string            `json:"executed_nodes"`
	NodeErrors    map[string]string   `json:"node_errors"`
	Intent        string              `json:"intent"`
	Flags         state.DispatchFlags `json:"flags"`

	MarketDataAvailable     bool `json:"market_data_available"`
	SentimentAvailable      bool `json:"sentiment_available"`
	ForwardLookingAvailable bool `json:"forward_looking_available"`
	ContextAvailable        bool `json:"context_available"`
	VisualizationAvailable  bool `json:"visualization_available"`
	ContextCount            int  `json:"context_count"`

	Visualizations []state.VisualizationData `json:"visualizations,omitempty"`
	Snapshot       *state.InvestorSnapshot   `json:"snapshot,omitempty"`
	Metadata       *state.ReportMetadata     `json:"metadata,omitempty"`
}

// Config holds the service's tunables.
type Config struct {
	// Envelope is the per-node retry policy.
	Envelope engine.EnvelopeConfig

	// Report bounds the synthesis reflection loop.
	Report ReportConfig

	// RunTimeout caps one run end to end. Default: 2m
	RunTimeout time.Duration
}

// Validate fills zero fields with defaults.
func (c *Config) Validate() error {
	if err := c.Envelope.Validate(); err != nil {
		return err
	}
	if err := c.Report.Validate(); err != nil {
		return err
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 2 * time.Minute
	}
	return nil
}

// Dependencies are the collaborators the workflow nodes call out to.
type Dependencies struct {
	Completer llm.Completer
	Market    marketdata.Provider
	Docs      DocumentStore
	Memory    memory.Store
	Archive   storage.Archiver
	Resolver  *marketdata.Resolver
	Logger    *zap.Logger
	Recorder  engine.Recorder
}

// Service is the run driver: it owns the workflow graph, built once at
// startup, and drives each query through it.
type Service struct {
	graph  *engine.Graph
	store  memory.Store
	logger *zap.Logger
	cfg    Config
}

// NewService builds the workflow graph and returns the driver.
func NewService(deps Dependencies, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Completer == nil || deps.Market == nil || deps.Docs == nil || deps.Memory == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("%w: missing collaborator dependency", engine.ErrInvalidInput)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	graph, err := buildGraph(deps, cfg)
	if err != nil {
		return nil, err
	}

	return &Service{
		graph:  graph,
		store:  deps.Memory,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// buildGraph registers every node and wires the topology:
//
//	validate → refine_query → load_history → classify_intent
//	    → [market_data | sentiment | forward_looking | retrieve_docs]
//	    → aggregate → visualize → report → quality_gate → persist
func buildGraph(deps Dependencies, cfg Config) (*engine.Graph, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := engine.NewGraph(logger)
	wrap := func(node engine.Node) *engine.Envelope {
		return engine.NewEnvelope(node, cfg.Envelope, logger, deps.Recorder)
	}

	nodes := []engine.Node{
		ValidateNode(deps.Completer),
		RefineQueryNode(deps.Completer),
		LoadHistoryNode(deps.Memory),
		ClassifyIntentNode(deps.Completer, deps.Resolver),
		MarketDataNode(deps.Market),
		SentimentNode(deps.Docs, deps.Completer),
		ForwardLookingNode(deps.Market),
		RetrieveDocsNode(deps.Docs),
		AggregateNode(),
		VisualizeNode(deps.Market),
		ReportNode(deps.Completer, cfg.Report),
		QualityGateNode(deps.Completer),
		PersistNode(deps.Memory, deps.Archive),
	}
	for _, n := range nodes {
		if err := g.AddNode(wrap(n)); err != nil {
			return nil, err
		}
	}

	if err := g.AddEdge(NodeValidate, NodeRefineQuery); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeRefineQuery, NodeLoadHistory); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeLoadHistory, NodeClassifyIntent); err != nil {
		return nil, err
	}
	if err := g.SetConditional(NodeClassifyIntent, Route,
		[]string{NodeMarketData, NodeSentiment, NodeForwardLooking, NodeRetrieveDocs},
		NodeAggregate); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeAggregate, NodeVisualize); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeVisualize, NodeReport); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeReport, NodeQualityGate); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeQualityGate, NodePersist); err != nil {
		return nil, err
	}
	if err := g.SetEntry(NodeValidate); err != nil {
		return nil, err
	}
	return g, nil
}

// Research drives one query through the workflow and maps the terminal state
// to the response surface. Specialist failures surface as availability flags
// and per-node errors; only cancellation and empty synthesis are fatal.
func (svc *Service) Research(ctx context.Context, req Request) (*Result, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	runID := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, svc.cfg.RunTimeout)
	defer cancel()

	s := state.New(runID, sessionID, req.Query, nil)
	svc.logger.Info("research run starting",
		zap.String("run_id", runID),
		zap.String("session_id", sessionID),
		zap.String("query", req.Query))

	start := time.Now()
	if err := svc.graph.Run(ctx, s); err != nil {
		svc.logger.Error("research run failed",
			zap.String("run_id", runID),
			zap.Error(err))
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	if strings.TrimSpace(s.Report) == "" {
		svc.logger.Error("research run produced no report", zap.String("run_id", runID))
		return nil, fmt.Errorf("run %s: %w", runID, ErrEmptyReport)
	}

	svc.logger.Info("research run completed",
		zap.String("run_id", runID),
		zap.Duration("duration", time.Since(start)),
		zap.Int("executed_nodes", len(s.ExecutedNodes)),
		zap.Int("node_errors", len(s.NodeErrors)))

	return resultFromState(s), nil
}

// History returns the session's stored conversation, oldest first.
func (svc *Service) History(ctx context.Context, sessionID string, limit int) ([]state.Message, error) {
	if limit <= 0 {
		limit = historyLimit
	}
	return svc.store.Load(ctx, sessionID, limit)
}

func resultFromState(s *state.WorkflowState) *Result {
	sources := dataSourceAvailability(s)
	return &Result{
		SessionID:     s.SessionID,
		RunID:         s.RunID,
		Report:        s.Report,
		Tickers:       s.Tickers,
		ExecutedNodes: s.ExecutedNodes,
		NodeErrors:    s.NodeErrors,
		Intent:        string(s.Intent),
		Flags:         s.Flags,

		MarketDataAvailable:     sources["market_data"],
		SentimentAvailable:      sources["sentiment"],
		ForwardLookingAvailable: sources["forward_looking"],
		ContextAvailable:        sources["retrieved_docs"],
		VisualizationAvailable:  sources["visualization"],
		ContextCount:            len(s.Documents),

		Visualizations: s.Visualizations,
		Snapshot:       s.Snapshot,
		Metadata:       s.Metadata,
	}
}
