// Package state defines the shared record a research run threads through the
// workflow graph, plus the partial-update type and merge rules that let
// concurrently executing nodes contribute to it without clobbering each other.
package state

import "time"

// Intent classifies what a research query is asking for.
type Intent string

const (
	IntentPriceQuery          Intent = "price_query"
	IntentFundamentalAnalysis Intent = "fundamental_analysis"
	IntentSentimentAnalysis   Intent = "sentiment_analysis"
	IntentGeneralResearch     Intent = "general_research"
	IntentComparison          Intent = "comparison"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentPriceQuery, IntentFundamentalAnalysis, IntentSentimentAnalysis,
		IntentGeneralResearch, IntentComparison:
		return true
	}
	return false
}

// DispatchFlags are the routing booleans the intent classifier sets and the
// router reads when choosing which specialists to dispatch.
type DispatchFlags struct {
	MarketData bool `json:"should_fetch_market_data"`
	Sentiment  bool `json:"should_analyze_sentiment"`
	Context    bool `json:"should_retrieve_context"`
}

// Message is one entry of conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NodeMetrics captures one node's envelope telemetry.
type NodeMetrics struct {
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Success  bool          `json:"success"`
}

// WorkflowState is the shared record for one research run. Identity fields are
// set once at construction. Routing fields are last-write-wins. Accumulator
// fields (slices and maps) start at their merge identity and only ever grow,
// which is what lets updates from parallel branches be merged safely.
type WorkflowState struct {
	// Identity, set once per run.
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	History   []Message `json:"history"`
	StartedAt time.Time `json:"started_at"`

	// Routing, last-write-wins.
	Intent       Intent        `json:"intent"`
	Tickers      []string      `json:"tickers"`
	Flags        DispatchFlags `json:"flags"`
	QueryValid   bool          `json:"query_valid"`
	RefinedQuery string        `json:"refined_query"`

	// Execution tracking, merged across branches.
	ExecutedNodes []string                `json:"executed_nodes"`
	Errors        []string                `json:"errors"`
	NodeErrors    map[string]string       `json:"node_errors"`
	NodeMetrics   map[string]NodeMetrics  `json:"node_metrics"`
	Traces        map[string][]string     `json:"reasoning_traces"`

	// Specialist outputs, merged across branches.
	MarketData     []MarketData        `json:"market_data"`
	Sentiment      []SentimentAnalysis `json:"sentiment_analysis"`
	Consensus      []AnalystConsensus  `json:"analyst_consensus"`
	PeerValuation  []PeerValuation     `json:"peer_valuation"`
	Documents      []RetrievedContext  `json:"retrieved_context"`
	Visualizations []VisualizationData `json:"visualization_data"`

	// Final output, last-write-wins.
	Report   string            `json:"report"`
	Snapshot *InvestorSnapshot `json:"snapshot,omitempty"`
	Metadata *ReportMetadata   `json:"report_metadata,omitempty"`
}

// New constructs the per-run state with every accumulator at its merge
// identity: empty slices and empty maps.
func New(runID, sessionID, query string, history []Message) *WorkflowState {
	return &WorkflowState{
		RunID:     runID,
		SessionID: sessionID,
		Query:     query,
		History:   history,
		StartedAt: time.Now().UTC(),

		Intent:  IntentGeneralResearch,
		Tickers: []string{},

		ExecutedNodes: []string{},
		Errors:        []string{},
		NodeErrors:    map[string]string{},
		NodeMetrics:   map[string]NodeMetrics{},
		Traces:        map[string][]string{},

		MarketData:     []MarketData{},
		Sentiment:      []SentimentAnalysis{},
		Consensus:      []AnalystConsensus{},
		PeerValuation:  []PeerValuation{},
		Documents:      []RetrievedContext{},
		Visualizations: []VisualizationData{},
	}
}

// Clone deep-copies the state so a concurrent branch can read its own
// snapshot while the scheduler merges sibling updates into the original.
func (s *WorkflowState) Clone() *WorkflowState {
	c := *s
	c.History = append([]Message(nil), s.History...)
	c.Tickers = append([]string(nil), s.Tickers...)
	c.ExecutedNodes = append([]string(nil), s.ExecutedNodes...)
	c.Errors = append([]string(nil), s.Errors...)
	c.MarketData = append([]MarketData(nil), s.MarketData...)
	c.Sentiment = append([]SentimentAnalysis(nil), s.Sentiment...)
	c.Consensus = append([]AnalystConsensus(nil), s.Consensus...)
	c.PeerValuation = append([]PeerValuation(nil), s.PeerValuation...)
	c.Documents = append([]RetrievedContext(nil), s.Documents...)
	c.Visualizations = append([]VisualizationData(nil), s.Visualizations...)

	c.NodeErrors = make(map[string]string, len(s.NodeErrors))
	for k, v := range s.NodeErrors {
		c.NodeErrors[k] = v
	}
	c.NodeMetrics = make(map[string]NodeMetrics, len(s.NodeMetrics))
	for k, v := range s.NodeMetrics {
		c.NodeMetrics[k] = v
	}
	c.Traces = make(map[string][]string, len(s.Traces))
	for k, v := range s.Traces {
		c.Traces[k] = append([]string(nil), v...)
	}
	return &c
}

// PrimaryTicker returns the first extracted ticker, or "" when none were found.
func (s *WorkflowState) PrimaryTicker() string {
	if len(s.Tickers) == 0 {
		return ""
	}
	return s.Tickers[0]
}
