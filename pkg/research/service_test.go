package research

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/memory"
	"github.com/wehubfusion/Minerva/pkg/state"
)

func newTestService(t *testing.T, completer *scriptedCompleter) (*Service, *memory.InMemoryStore) {
	t.Helper()
	store := memory.NewInMemoryStore()
	svc, err := NewService(Dependencies{
		Completer: completer,
		Market:    &fakeProvider{},
		Docs:      &fakeDocs{},
		Memory:    store,
		Resolver:  testResolver(),
	}, Config{
		Envelope: engine.EnvelopeConfig{MaxAttempts: 1, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)
	return svc, store
}

func TestResearchPriceQuery(t *testing.T) {
	completer := &scriptedCompleter{
		classifyOut: `{"intent": "price_query", "fetch_market_data": true, "analyze_sentiment": false, "retrieve_context": false, "reasoning": "price"}`,
		synthOut:    []string{"## AAPL\nTrading near its 52-week high."},
	}
	svc, store := newTestService(t, completer)

	res, err := svc.Research(context.Background(), Request{Query: "What's AAPL price?"})
	require.NoError(t, err)

	assert.Equal(t, "## AAPL\nTrading near its 52-week high.", res.Report)
	assert.Equal(t, []string{"AAPL"}, res.Tickers)
	assert.Equal(t, "price_query", res.Intent)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.RunID)

	assert.Contains(t, res.ExecutedNodes, NodeValidate)
	assert.Contains(t, res.ExecutedNodes, NodeMarketData)
	assert.Contains(t, res.ExecutedNodes, NodeForwardLooking)
	assert.NotContains(t, res.ExecutedNodes, NodeSentiment)
	assert.NotContains(t, res.ExecutedNodes, NodeRetrieveDocs)
	assert.Empty(t, res.NodeErrors)

	assert.True(t, res.MarketDataAvailable)
	assert.True(t, res.ForwardLookingAvailable)
	assert.False(t, res.SentimentAvailable)
	assert.False(t, res.ContextAvailable)
	assert.True(t, res.VisualizationAvailable)

	require.NotNil(t, res.Snapshot)
	assert.Equal(t, "AAPL", res.Snapshot.Ticker)
	require.NotNil(t, res.Metadata)
	assert.Equal(t, "brief_market", res.Metadata.ReportTemplate)
	assert.True(t, res.Metadata.QualityPassed)

	msgs, err := store.Load(context.Background(), res.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestResearchWithoutTickersRetrievesContext(t *testing.T) {
	completer := &scriptedCompleter{
		classifyOut: `{"intent": "general_research", "fetch_market_data": true, "analyze_sentiment": true, "retrieve_context": true, "reasoning": "macro"}`,
	}
	svc, _ := newTestService(t, completer)

	res, err := svc.Research(context.Background(), Request{Query: "how do rate cuts affect the market?"})
	require.NoError(t, err)

	assert.Empty(t, res.Tickers)
	assert.Contains(t, res.ExecutedNodes, NodeRetrieveDocs)
	assert.NotContains(t, res.ExecutedNodes, NodeMarketData)
	assert.NotContains(t, res.ExecutedNodes, NodeSentiment)
	assert.True(t, res.ContextAvailable)
	assert.False(t, res.MarketDataAvailable)
	assert.Equal(t, 1, res.ContextCount)
	assert.Nil(t, res.Snapshot)
}

func TestResearchInvalidQuerySkipsSpecialists(t *testing.T) {
	completer := &scriptedCompleter{
		validateOut: `{"valid": false, "reason": "not a research request"}`,
	}
	svc, _ := newTestService(t, completer)

	res, err := svc.Research(context.Background(), Request{Query: "knock knock"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Report)
	assert.Empty(t, res.Tickers)
	for _, specialist := range []string{NodeMarketData, NodeSentiment, NodeForwardLooking, NodeRetrieveDocs} {
		assert.NotContains(t, res.ExecutedNodes, specialist)
	}
	assert.Contains(t, res.ExecutedNodes, NodeAggregate)
	assert.Contains(t, res.ExecutedNodes, NodeReport)
	assert.False(t, res.MarketDataAvailable)
	assert.False(t, res.ContextAvailable)
}

func TestResearchContinuesSession(t *testing.T) {
	completer := &scriptedCompleter{
		classifyOut: `{"intent": "price_query", "fetch_market_data": true}`,
	}
	svc, _ := newTestService(t, completer)

	first, err := svc.Research(context.Background(), Request{Query: "What's AAPL price?"})
	require.NoError(t, err)

	second, err := svc.Research(context.Background(), Request{SessionID: first.SessionID, Query: "And what about MSFT?"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.NotEqual(t, first.RunID, second.RunID)

	msgs, err := svc.History(context.Background(), first.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestResearchCancelledContext(t *testing.T) {
	svc, _ := newTestService(t, &scriptedCompleter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Research(ctx, Request{Query: "What's AAPL price?"})
	assert.Error(t, err)
}

func TestNewServiceRejectsMissingDependencies(t *testing.T) {
	_, err := NewService(Dependencies{}, Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestResultFromState(t *testing.T) {
	s := state.New("run-1", "sess-1", "q", nil)
	s.Report = "## R"
	s.Tickers = []string{"AAPL"}
	s.Intent = state.IntentPriceQuery
	s.MarketData = []state.MarketData{{Ticker: "AAPL"}}
	s.Documents = []state.RetrievedContext{{Text: "a"}, {Text: "b"}}
	s.NodeErrors = map[string]string{NodeSentiment: "timeout"}

	res := resultFromState(s)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "sess-1", res.SessionID)
	assert.True(t, res.MarketDataAvailable)
	assert.False(t, res.SentimentAvailable)
	assert.True(t, res.ContextAvailable)
	assert.Equal(t, 2, res.ContextCount)
}
