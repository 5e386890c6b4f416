package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/state"
)

type countingProvider struct {
	quoteCalls   int
	historyCalls int
	quoteErr     error
}

func (p *countingProvider) Quote(_ context.Context, ticker string) (state.MarketData, error) {
	p.quoteCalls++
	if p.quoteErr != nil {
		return state.MarketData{}, p.quoteErr
	}
	return state.MarketData{Ticker: ticker, CurrentPrice: 190.5, YearHigh: 200, YearLow: 120}, nil
}

func (p *countingProvider) PeerComparison(_ context.Context, ticker string) (state.PeerValuation, error) {
	return state.PeerValuation{Ticker: ticker, PeerCount: 4}, nil
}

func (p *countingProvider) AnalystConsensus(_ context.Context, ticker string) (state.AnalystConsensus, error) {
	return state.AnalystConsensus{Ticker: ticker, Recommendation: "buy"}, nil
}

func (p *countingProvider) DailyHistory(_ context.Context, ticker string) ([]state.PricePoint, error) {
	p.historyCalls++
	return []state.PricePoint{{Date: "2026-08-27", Close: 190.5}}, nil
}

func newCacheFixture(t *testing.T) (*CachedProvider, *countingProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	upstream := &countingProvider{}
	cached := NewCachedProvider(upstream, rdb, CacheConfig{QuoteTTL: time.Minute}, zap.NewNop())
	return cached, upstream, mr
}

func TestCachedQuoteServedWithinTTL(t *testing.T) {
	cached, upstream, _ := newCacheFixture(t)
	ctx := context.Background()

	first, err := cached.Quote(ctx, "AAPL")
	require.NoError(t, err)
	second, err := cached.Quote(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.quoteCalls)
	assert.Equal(t, first, second)
}

func TestCachedQuoteRefetchedAfterExpiry(t *testing.T) {
	cached, upstream, mr := newCacheFixture(t)
	ctx := context.Background()

	_, err := cached.Quote(ctx, "AAPL")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = cached.Quote(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.quoteCalls)
}

func TestCachedQuotePropagatesUpstreamError(t *testing.T) {
	cached, upstream, _ := newCacheFixture(t)
	upstream.quoteErr = errors.New("503 from quote api")

	_, err := cached.Quote(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.Equal(t, 1, upstream.quoteCalls)
}

func TestCachedHistoryCached(t *testing.T) {
	cached, upstream, _ := newCacheFixture(t)
	ctx := context.Background()

	_, err := cached.DailyHistory(ctx, "AAPL")
	require.NoError(t, err)
	_, err = cached.DailyHistory(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.historyCalls)
}

func TestCacheFailureFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	upstream := &countingProvider{}
	cached := NewCachedProvider(upstream, rdb, CacheConfig{}, zap.NewNop())
	mr.Close()

	_, err := cached.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.quoteCalls)
}

func TestTrendAnalysis(t *testing.T) {
	t.Run("near high", func(t *testing.T) {
		q := state.MarketData{Ticker: "AAPL", CurrentPrice: 190, YearHigh: 200, YearLow: 100}
		TrendAnalysis(&q)
		require.NotNil(t, q.Week52Position)
		assert.InDelta(t, 90.0, *q.Week52Position, 0.01)
		assert.Equal(t, "near_high", q.TrendSignal)
		assert.InDelta(t, 5.0, *q.DistanceFromHigh, 0.01)
		assert.InDelta(t, 90.0, *q.DistanceFromLow, 0.01)
	})

	t.Run("near low", func(t *testing.T) {
		q := state.MarketData{Ticker: "F", CurrentPrice: 110, YearHigh: 200, YearLow: 100}
		TrendAnalysis(&q)
		assert.Equal(t, "near_low", q.TrendSignal)
	})

	t.Run("mid range", func(t *testing.T) {
		q := state.MarketData{Ticker: "KO", CurrentPrice: 150, YearHigh: 200, YearLow: 100}
		TrendAnalysis(&q)
		assert.Equal(t, "mid_range", q.TrendSignal)
	})

	t.Run("missing range leaves analytics unset", func(t *testing.T) {
		q := state.MarketData{Ticker: "X", CurrentPrice: 150}
		TrendAnalysis(&q)
		assert.Nil(t, q.Week52Position)
		assert.Empty(t, q.TrendSignal)
	})
}

func TestPremiumDiscount(t *testing.T) {
	assert.InDelta(t, 25.0, PremiumDiscount(25, 20), 0.01)
	assert.InDelta(t, -20.0, PremiumDiscount(16, 20), 0.01)
	assert.Zero(t, PremiumDiscount(0, 20))
	assert.Zero(t, PremiumDiscount(25, 0))
}
