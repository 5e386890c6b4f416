package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/llm"
	"github.com/wehubfusion/Minerva/pkg/state"
)

func TestMarketDataNodePartialFailure(t *testing.T) {
	provider := &fakeProvider{failQuotes: map[string]error{
		"MSFT": errors.New("request timeout"),
	}}
	node := MarketDataNode(provider)

	s := state.New("r", "s", "q", nil)
	s.Tickers = []string{"AAPL", "MSFT"}

	u, err := node.Run(context.Background(), s, &engine.Trace{})
	require.NoError(t, err, "one ticker failing must not fail the node")

	require.Len(t, u.MarketData, 1)
	assert.Equal(t, "AAPL", u.MarketData[0].Ticker)
	require.NotNil(t, u.MarketData[0].Week52Position)
	assert.Equal(t, "near_high", u.MarketData[0].TrendSignal)
	require.Len(t, u.PeerValuation, 1)
}

func TestMarketDataNodeAllTickersFail(t *testing.T) {
	provider := &fakeProvider{failQuotes: map[string]error{
		"AAPL": errors.New("request timeout"),
		"MSFT": errors.New("request timeout"),
	}}
	node := MarketDataNode(provider)

	s := state.New("r", "s", "q", nil)
	s.Tickers = []string{"AAPL", "MSFT"}

	_, err := node.Run(context.Background(), s, &engine.Trace{})
	require.Error(t, err)
	assert.True(t, engine.IsTransient(err))
}

func TestForwardLookingNode(t *testing.T) {
	node := ForwardLookingNode(&fakeProvider{})

	s := state.New("r", "s", "q", nil)
	s.Tickers = []string{"AAPL"}

	u, err := node.Run(context.Background(), s, &engine.Trace{})
	require.NoError(t, err)
	require.Len(t, u.Consensus, 1)
	assert.Equal(t, "buy", u.Consensus[0].Recommendation)
}

func TestSentimentNodeNeutralFallbacks(t *testing.T) {
	t.Run("no news", func(t *testing.T) {
		node := SentimentNode(&fakeDocs{docs: []state.RetrievedContext{}}, &scriptedCompleter{})
		s := state.New("r", "s", "q", nil)
		s.Tickers = []string{"AAPL"}

		u, err := node.Run(context.Background(), s, &engine.Trace{})
		require.NoError(t, err)
		require.Len(t, u.Sentiment, 1)
		assert.Equal(t, "neutral", u.Sentiment[0].OverallSentiment)
		assert.Zero(t, u.Sentiment[0].NewsCount)
	})

	t.Run("unusable verdict", func(t *testing.T) {
		broken := completerFunc(func(context.Context, llm.Request) (string, error) {
			return "not json at all", nil
		})
		node := SentimentNode(&fakeDocs{}, broken)
		s := state.New("r", "s", "q", nil)
		s.Tickers = []string{"AAPL"}

		u, err := node.Run(context.Background(), s, &engine.Trace{})
		require.NoError(t, err)
		require.Len(t, u.Sentiment, 1)
		assert.Equal(t, "neutral", u.Sentiment[0].OverallSentiment)
		assert.Equal(t, 1, u.Sentiment[0].NewsCount)
	})
}

func TestSentimentNodeScoresNews(t *testing.T) {
	node := SentimentNode(&fakeDocs{}, &scriptedCompleter{})
	s := state.New("r", "s", "q", nil)
	s.Tickers = []string{"AAPL"}

	u, err := node.Run(context.Background(), s, &engine.Trace{})
	require.NoError(t, err)
	require.Len(t, u.Sentiment, 1)
	assert.Equal(t, "positive", u.Sentiment[0].OverallSentiment)
	assert.Equal(t, []string{"earnings"}, u.Sentiment[0].KeyThemes)
}

func TestRetrieveDocsNodeWithoutTickers(t *testing.T) {
	node := RetrieveDocsNode(&fakeDocs{})
	s := state.New("r", "s", "macro outlook", nil)

	u, err := node.Run(context.Background(), s, &engine.Trace{})
	require.NoError(t, err)
	require.Len(t, u.Documents, 1)
	assert.Equal(t, "edgar", u.Documents[0].Source)
}

func TestRetrieveDocsNodeSearchFailure(t *testing.T) {
	node := RetrieveDocsNode(&fakeDocs{err: errors.New("vector store unavailable")})
	s := state.New("r", "s", "macro outlook", nil)

	_, err := node.Run(context.Background(), s, &engine.Trace{})
	require.Error(t, err)
	assert.True(t, engine.IsTransient(err))
}

func TestVisualizeNodeBuildsBundles(t *testing.T) {
	node := VisualizeNode(&fakeProvider{})
	s := state.New("r", "s", "q", nil)
	pos := 87.5
	s.MarketData = []state.MarketData{{
		Ticker: "AAPL", CurrentPrice: 190, YearHigh: 200, YearLow: 120, Week52Position: &pos,
	}}
	s.PeerValuation = []state.PeerValuation{{Ticker: "AAPL", PERatio: 28, PriceToBook: 40}}

	u, err := node.Run(context.Background(), s, &engine.Trace{})
	require.NoError(t, err)
	require.Len(t, u.Visualizations, 1)

	viz := u.Visualizations[0]
	assert.Equal(t, "AAPL", viz.Ticker)
	assert.Len(t, viz.PriceHistory, 2)
	assert.Equal(t, 192.0, viz.PeriodHigh)
	assert.Equal(t, 186.0, viz.PeriodLow)
	assert.Equal(t, int64(1000000), viz.AverageVolume)
	require.Len(t, viz.PeerComparison, 1)
	assert.Equal(t, 28.0, viz.PeerComparison[0].PERatio)
}

func TestVisualizeNodeSkipsWithoutMarketData(t *testing.T) {
	node := VisualizeNode(&fakeProvider{})
	s := state.New("r", "s", "q", nil)

	u, err := node.Run(context.Background(), s, &engine.Trace{})
	require.NoError(t, err)
	assert.Empty(t, u.Visualizations)
}
