package state

// Update is a partial state change produced by a single node execution. Nil
// fields are untouched. How a populated field lands on the state depends on
// its merge policy:
//
//   - overwrite: pointer fields replace the current value
//   - append-list: slice fields are concatenated onto the accumulator
//   - union-map: map fields are merged key-by-key, later writers winning
//
// Within one fan-out generation every branch writes map keys namespaced by its
// own node name, so union merges never collide.
type Update struct {
	// Overwrite fields.
	Intent       *Intent
	Tickers      []string // replaces the ticker list when non-nil
	Flags        *DispatchFlags
	QueryValid   *bool
	RefinedQuery *string
	History      []Message // replaces history when non-nil
	Report       *string
	Snapshot     *InvestorSnapshot
	Metadata     *ReportMetadata

	// Append-list fields.
	ExecutedNodes  []string
	Errors         []string
	MarketData     []MarketData
	Sentiment      []SentimentAnalysis
	Consensus      []AnalystConsensus
	PeerValuation  []PeerValuation
	Documents      []RetrievedContext
	Visualizations []VisualizationData

	// Union-map fields.
	NodeErrors  map[string]string
	NodeMetrics map[string]NodeMetrics
	Traces      map[string][]string
}

// Merge combines two updates from the same execution sequence, b after a.
// It is used by the envelope to stack bookkeeping onto a node's own output.
func Merge(a, b Update) Update {
	out := a
	if b.Intent != nil {
		out.Intent = b.Intent
	}
	if b.Tickers != nil {
		out.Tickers = b.Tickers
	}
	if b.Flags != nil {
		out.Flags = b.Flags
	}
	if b.QueryValid != nil {
		out.QueryValid = b.QueryValid
	}
	if b.RefinedQuery != nil {
		out.RefinedQuery = b.RefinedQuery
	}
	if b.History != nil {
		out.History = b.History
	}
	if b.Report != nil {
		out.Report = b.Report
	}
	if b.Snapshot != nil {
		out.Snapshot = b.Snapshot
	}
	if b.Metadata != nil {
		out.Metadata = b.Metadata
	}

	out.ExecutedNodes = append(out.ExecutedNodes, b.ExecutedNodes...)
	out.Errors = append(out.Errors, b.Errors...)
	out.MarketData = append(out.MarketData, b.MarketData...)
	out.Sentiment = append(out.Sentiment, b.Sentiment...)
	out.Consensus = append(out.Consensus, b.Consensus...)
	out.PeerValuation = append(out.PeerValuation, b.PeerValuation...)
	out.Documents = append(out.Documents, b.Documents...)
	out.Visualizations = append(out.Visualizations, b.Visualizations...)

	out.NodeErrors = unionString(out.NodeErrors, b.NodeErrors)
	out.NodeMetrics = unionMetrics(out.NodeMetrics, b.NodeMetrics)
	out.Traces = unionTraces(out.Traces, b.Traces)
	return out
}

// Apply folds an update into the state according to the per-field merge
// policies. The state is mutated in place; callers holding branch snapshots
// must apply to the scheduler's copy, not the snapshot.
func Apply(s *WorkflowState, u Update) {
	if u.Intent != nil {
		s.Intent = *u.Intent
	}
	if u.Tickers != nil {
		s.Tickers = u.Tickers
	}
	if u.Flags != nil {
		s.Flags = *u.Flags
	}
	if u.QueryValid != nil {
		s.QueryValid = *u.QueryValid
	}
	if u.RefinedQuery != nil {
		s.RefinedQuery = *u.RefinedQuery
	}
	if u.History != nil {
		s.History = u.History
	}
	if u.Report != nil {
		s.Report = *u.Report
	}
	if u.Snapshot != nil {
		s.Snapshot = u.Snapshot
	}
	if u.Metadata != nil {
		s.Metadata = u.Metadata
	}

	s.ExecutedNodes = append(s.ExecutedNodes, u.ExecutedNodes...)
	s.Errors = append(s.Errors, u.Errors...)
	s.MarketData = append(s.MarketData, u.MarketData...)
	s.Sentiment = append(s.Sentiment, u.Sentiment...)
	s.Consensus = append(s.Consensus, u.Consensus...)
	s.PeerValuation = append(s.PeerValuation, u.PeerValuation...)
	s.Documents = append(s.Documents, u.Documents...)
	s.Visualizations = append(s.Visualizations, u.Visualizations...)

	for k, v := range u.NodeErrors {
		s.NodeErrors[k] = v
	}
	for k, v := range u.NodeMetrics {
		s.NodeMetrics[k] = v
	}
	for k, v := range u.Traces {
		s.Traces[k] = append(s.Traces[k], v...)
	}
}

func unionString(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func unionMetrics(dst, src map[string]NodeMetrics) map[string]NodeMetrics {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]NodeMetrics, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func unionTraces(dst, src map[string][]string) map[string][]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string][]string, len(src))
	}
	for k, v := range src {
		dst[k] = append(dst[k], v...)
	}
	return dst
}

// Ptr returns a pointer to v. It keeps update construction terse at call
// sites that set overwrite fields.
func Ptr[T any](v T) *T { return &v }
