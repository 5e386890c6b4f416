// Package research wires the investment-research workflow: the specialist
// nodes, the dispatch router, and the service that drives a query through
// the graph to a finished report.
package research

import "github.com/wehubfusion/Minerva/pkg/state"

// Graph node names.
const (
	NodeValidate       = "validate"
	NodeRefineQuery    = "refine_query"
	NodeLoadHistory    = "load_history"
	NodeClassifyIntent = "classify_intent"
	NodeMarketData     = "market_data"
	NodeSentiment      = "sentiment"
	NodeForwardLooking = "forward_looking"
	NodeRetrieveDocs   = "retrieve_docs"
	NodeAggregate      = "aggregate"
	NodeVisualize      = "visualize"
	NodeReport         = "report"
	NodeQualityGate    = "quality_gate"
	NodePersist        = "persist"
)

// Route decides which specialists to dispatch for the current state. It is a
// pure function, so dispatch decisions are reproducible and testable on their
// own. The rules apply in priority order and the returned list is
// duplicate-free; the scheduler dispatches it verbatim.
func Route(s *state.WorkflowState) []string {
	// An invalid query short-circuits straight to report synthesis.
	if !s.QueryValid {
		return nil
	}

	var selected []string
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			selected = append(selected, name)
		}
	}

	hasTickers := len(s.Tickers) > 0

	// Identifier-free queries always get a semantic-search pass.
	if s.Flags.Context || !hasTickers {
		add(NodeRetrieveDocs)
	}

	// Forward-looking guidance rides along whenever market data is fetched;
	// it needs the dispatch, not a successful fetch.
	if s.Flags.MarketData && hasTickers {
		add(NodeMarketData)
		add(NodeForwardLooking)
	}

	if s.Flags.Sentiment && hasTickers {
		add(NodeSentiment)
	}

	// Safety net for queries that name a subject but arrived with no data
	// flags, e.g. after intent classification failed open.
	if hasTickers && !s.Flags.MarketData && !s.Flags.Sentiment {
		add(NodeMarketData)
		add(NodeSentiment)
		add(NodeForwardLooking)
	}

	return selected
}
