package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/state"
)

func reportState() *state.WorkflowState {
	s := state.New("run", "session", "Analyze AAPL", nil)
	s.QueryValid = true
	s.Intent = state.IntentGeneralResearch
	s.Tickers = []string{"AAPL"}
	s.MarketData = []state.MarketData{{
		Ticker:       "AAPL",
		CurrentPrice: 190,
		YearHigh:     200,
		YearLow:      120,
		PERatio:      29,
	}}
	return s
}

func TestReportAcceptedOnFirstPass(t *testing.T) {
	completer := &scriptedCompleter{
		synthOut: []string{"## AAPL\nTrading at 190."},
		evalOut:  []string{`{"score": 0.92, "gaps": []}`},
	}
	node := ReportNode(completer, ReportConfig{})

	u, err := node.Run(context.Background(), reportState(), &engine.Trace{})
	require.NoError(t, err)

	require.NotNil(t, u.Report)
	assert.Equal(t, "## AAPL\nTrading at 190.", *u.Report)
	assert.Equal(t, 1, completer.synthCalls)
	assert.Equal(t, 1, completer.evalCalls)
	require.NotNil(t, u.Metadata)
	assert.Equal(t, 1, u.Metadata.RefinementIterations)
	assert.Equal(t, "comprehensive", u.Metadata.ReportTemplate)
}

func TestReportRefinesOnceWhenBelowThreshold(t *testing.T) {
	completer := &scriptedCompleter{
		synthOut: []string{"## Draft one", "## Draft two, improved"},
		evalOut: []string{
			`{"score": 0.60, "gaps": ["missing valuation context"]}`,
			`{"score": 0.90, "gaps": []}`,
		},
	}
	node := ReportNode(completer, ReportConfig{})

	u, err := node.Run(context.Background(), reportState(), &engine.Trace{})
	require.NoError(t, err)

	assert.Equal(t, "## Draft two, improved", *u.Report)
	assert.Equal(t, 2, completer.synthCalls, "one refinement pass, not the full budget")
	assert.Equal(t, 2, completer.evalCalls)
	assert.Equal(t, 2, u.Metadata.RefinementIterations)
}

func TestReportStopsAtIterationBudget(t *testing.T) {
	completer := &scriptedCompleter{
		synthOut: []string{"## v1", "## v2", "## v3"},
		evalOut:  []string{`{"score": 0.1, "gaps": ["thin"]}`},
	}
	node := ReportNode(completer, ReportConfig{MaxIterations: 3, QualityThreshold: 0.85})

	u, err := node.Run(context.Background(), reportState(), &engine.Trace{})
	require.NoError(t, err)

	assert.Equal(t, "## v3", *u.Report)
	assert.Equal(t, 3, completer.synthCalls)
	// The final pass is never evaluated; its draft ships as-is.
	assert.Equal(t, 2, completer.evalCalls)
	assert.Equal(t, 3, u.Metadata.RefinementIterations)
}

func TestReportEvaluationFailureAcceptsDraft(t *testing.T) {
	completer := &scriptedCompleter{
		synthOut: []string{"## Only draft"},
		evalOut:  []string{`["no verdict here"]`},
	}
	node := ReportNode(completer, ReportConfig{})

	u, err := node.Run(context.Background(), reportState(), &engine.Trace{})
	require.NoError(t, err)

	assert.Equal(t, "## Only draft", *u.Report)
	assert.Equal(t, 1, completer.synthCalls)
}

func TestReportFallbackWhenSynthesisUnavailable(t *testing.T) {
	completer := &scriptedCompleter{errEverything: errors.New("model offline")}
	node := ReportNode(completer, ReportConfig{})

	s := reportState()
	u, err := node.Run(context.Background(), s, &engine.Trace{})
	require.NoError(t, err)

	require.NotNil(t, u.Report)
	assert.Contains(t, *u.Report, "Research Summary")
	assert.Contains(t, *u.Report, "Market data AAPL")
	assert.Nil(t, u.Snapshot, "snapshot requires a working model")
}

func TestReportFallbackForInvalidQuery(t *testing.T) {
	completer := &scriptedCompleter{errEverything: errors.New("model offline")}
	node := ReportNode(completer, ReportConfig{})

	s := state.New("run", "session", "asdf qwerty", nil)
	s.QueryValid = false

	u, err := node.Run(context.Background(), s, &engine.Trace{})
	require.NoError(t, err)
	assert.Contains(t, *u.Report, "could not be interpreted")
}

func TestReportSnapshotForPrimaryTicker(t *testing.T) {
	completer := &scriptedCompleter{
		synthOut: []string{"## AAPL report"},
		evalOut:  []string{`{"score": 0.95, "gaps": []}`},
	}
	node := ReportNode(completer, ReportConfig{})

	u, err := node.Run(context.Background(), reportState(), &engine.Trace{})
	require.NoError(t, err)

	require.NotNil(t, u.Snapshot)
	assert.Equal(t, "AAPL", u.Snapshot.Ticker)
	assert.Equal(t, 190.0, u.Snapshot.CurrentPrice)
	assert.Equal(t, "hold", u.Snapshot.InvestmentRating)
	assert.NotEmpty(t, u.Snapshot.KeyHighlights)
}

func TestReportMetadataAvailability(t *testing.T) {
	completer := &scriptedCompleter{
		synthOut: []string{"## AAPL"},
		evalOut:  []string{`{"score": 0.95, "gaps": []}`},
	}
	node := ReportNode(completer, ReportConfig{})

	s := reportState()
	s.NodeErrors = map[string]string{NodeSentiment: "timeout"}
	s.Sentiment = []state.SentimentAnalysis{{Ticker: "AAPL", OverallSentiment: "positive"}}

	u, err := node.Run(context.Background(), s, &engine.Trace{})
	require.NoError(t, err)

	avail := u.Metadata.DataSources
	assert.True(t, avail["market_data"])
	assert.False(t, avail["sentiment"], "data present but the node failed")
	assert.False(t, avail["forward_looking"])
	assert.False(t, avail["retrieved_docs"])
}

func TestTemplateFor(t *testing.T) {
	assert.Equal(t, "brief_market", templateFor(state.IntentPriceQuery))
	assert.Equal(t, "sentiment_focused", templateFor(state.IntentSentimentAnalysis))
	assert.Equal(t, "peer_comparison", templateFor(state.IntentComparison))
	assert.Equal(t, "comprehensive", templateFor(state.IntentFundamentalAnalysis))
	assert.Equal(t, "comprehensive", templateFor(state.IntentGeneralResearch))
}
