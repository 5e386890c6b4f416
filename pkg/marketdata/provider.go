// Package marketdata defines the market-data collaborator used by the
// specialist nodes, a redis-backed quote cache, and a ticker resolver for
// mapping company names to symbols.
package marketdata

import (
	"context"

	"github.com/wehubfusion/Minerva/pkg/state"
)

// Provider fetches market data for a single ticker per call, so each
// identifier can fail and retry independently of its siblings.
type Provider interface {
	// Quote returns the current quote with day and 52-week ranges.
	Quote(ctx context.Context, ticker string) (state.MarketData, error)

	// PeerComparison returns the ticker's valuation ratios against its
	// sector averages.
	PeerComparison(ctx context.Context, ticker string) (state.PeerValuation, error)

	// AnalystConsensus returns forward-looking analyst guidance.
	AnalystConsensus(ctx context.Context, ticker string) (state.AnalystConsensus, error)

	// DailyHistory returns up to a year of daily bars, oldest first.
	DailyHistory(ctx context.Context, ticker string) ([]state.PricePoint, error)
}
