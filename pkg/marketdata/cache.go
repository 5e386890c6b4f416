package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/state"
)

// CacheConfig controls how long fetched data stays fresh.
type CacheConfig struct {
	// QuoteTTL bounds quote staleness. Default: 5m
	QuoteTTL time.Duration

	// HistoryTTL bounds daily-history staleness. History changes once a
	// day, so this can be generous. Default: 1h
	HistoryTTL time.Duration
}

// Validate fills zero fields with defaults.
func (c *CacheConfig) Validate() error {
	if c.QuoteTTL <= 0 {
		c.QuoteTTL = 5 * time.Minute
	}
	if c.HistoryTTL <= 0 {
		c.HistoryTTL = time.Hour
	}
	return nil
}

// CachedProvider decorates a Provider with a redis cache for quotes and daily
// history, the two calls that dominate upstream traffic. Cache failures fall
// through to the upstream provider; a broken cache must not break a run.
type CachedProvider struct {
	upstream Provider
	rdb      *redis.Client
	cfg      CacheConfig
	logger   *zap.Logger
}

// NewCachedProvider wraps upstream with the redis cache.
func NewCachedProvider(upstream Provider, rdb *redis.Client, cfg CacheConfig, logger *zap.Logger) *CachedProvider {
	_ = cfg.Validate()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{upstream: upstream, rdb: rdb, cfg: cfg, logger: logger}
}

func quoteKey(ticker string) string   { return "md:quote:" + ticker }
func historyKey(ticker string) string { return "md:history:" + ticker }

// Quote serves from cache when fresh, otherwise fetches upstream and stores
// the result.
func (p *CachedProvider) Quote(ctx context.Context, ticker string) (state.MarketData, error) {
	var cached state.MarketData
	if ok := p.lookup(ctx, quoteKey(ticker), &cached); ok {
		return cached, nil
	}

	quote, err := p.upstream.Quote(ctx, ticker)
	if err != nil {
		return state.MarketData{}, err
	}
	p.store(ctx, quoteKey(ticker), quote, p.cfg.QuoteTTL)
	return quote, nil
}

// DailyHistory serves from cache when fresh, otherwise fetches upstream.
func (p *CachedProvider) DailyHistory(ctx context.Context, ticker string) ([]state.PricePoint, error) {
	var cached []state.PricePoint
	if ok := p.lookup(ctx, historyKey(ticker), &cached); ok {
		return cached, nil
	}

	history, err := p.upstream.DailyHistory(ctx, ticker)
	if err != nil {
		return nil, err
	}
	p.store(ctx, historyKey(ticker), history, p.cfg.HistoryTTL)
	return history, nil
}

// PeerComparison always goes upstream.
func (p *CachedProvider) PeerComparison(ctx context.Context, ticker string) (state.PeerValuation, error) {
	return p.upstream.PeerComparison(ctx, ticker)
}

// AnalystConsensus always goes upstream.
func (p *CachedProvider) AnalystConsensus(ctx context.Context, ticker string) (state.AnalystConsensus, error) {
	return p.upstream.AnalystConsensus(ctx, ticker)
}

func (p *CachedProvider) lookup(ctx context.Context, key string, v any) bool {
	raw, err := p.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.logger.Warn("market data cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		p.logger.Warn("market data cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (p *CachedProvider) store(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("market data cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := p.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		p.logger.Warn("market data cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// TrendAnalysis fills the 52-week analytics on a quote: the price's position
// inside the range, distances from both ends, and the trend signal. Position
// >= 80 reads as near the high, <= 20 as near the low.
func TrendAnalysis(q *state.MarketData) {
	if q.YearLow <= 0 || q.YearHigh <= q.YearLow || q.CurrentPrice <= 0 {
		return
	}
	span := q.YearHigh - q.YearLow
	position := (q.CurrentPrice - q.YearLow) / span * 100
	if position < 0 {
		position = 0
	}
	if position > 100 {
		position = 100
	}
	fromHigh := (q.YearHigh - q.CurrentPrice) / q.YearHigh * 100
	fromLow := (q.CurrentPrice - q.YearLow) / q.YearLow * 100

	q.Week52Position = &position
	q.DistanceFromHigh = &fromHigh
	q.DistanceFromLow = &fromLow
	switch {
	case position >= 80:
		q.TrendSignal = "near_high"
	case position <= 20:
		q.TrendSignal = "near_low"
	default:
		q.TrendSignal = "mid_range"
	}
}

// PremiumDiscount returns the percentage premium (positive) or discount
// (negative) of a company ratio against its sector average, or 0 when either
// side is missing.
func PremiumDiscount(company, sectorAvg float64) float64 {
	if company <= 0 || sectorAvg <= 0 {
		return 0
	}
	return (company - sectorAvg) / sectorAvg * 100
}

var _ Provider = (*CachedProvider)(nil)

// ErrUnknownTicker is returned by providers for symbols they cannot serve.
var ErrUnknownTicker = errors.New("unknown ticker")
