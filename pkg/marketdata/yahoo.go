package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/state"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// sectorAverages carries reference valuation multiples per sector, used to
// position a company against its sector when no curated peer list exists.
var sectorAverages = map[string]struct{ PE, PB, PS float64 }{
	"Technology":             {PE: 28.0, PB: 6.5, PS: 5.8},
	"Communication Services": {PE: 22.0, PB: 3.4, PS: 3.1},
	"Consumer Cyclical":      {PE: 24.0, PB: 4.8, PS: 1.6},
	"Consumer Defensive":     {PE: 21.0, PB: 4.2, PS: 1.3},
	"Financial Services":     {PE: 14.0, PB: 1.6, PS: 2.9},
	"Healthcare":             {PE: 19.0, PB: 4.0, PS: 1.9},
	"Industrials":            {PE: 20.0, PB: 4.5, PS: 1.8},
	"Energy":                 {PE: 12.0, PB: 2.0, PS: 1.4},
	"Utilities":              {PE: 17.0, PB: 1.9, PS: 2.4},
	"Real Estate":            {PE: 16.0, PB: 2.2, PS: 5.0},
	"Basic Materials":        {PE: 15.0, PB: 2.3, PS: 1.5},
}

// YahooProvider fetches quotes, history, and analyst guidance from the Yahoo
// Finance public endpoints.
type YahooProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewYahooProvider creates a provider against the public Yahoo endpoints.
func NewYahooProvider(logger *zap.Logger) *YahooProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YahooProvider{
		baseURL:    defaultYahooBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the API host.
func (p *YahooProvider) WithBaseURL(baseURL string) *YahooProvider {
	p.baseURL = baseURL
	return p
}

// WithHTTPClient overrides the transport.
func (p *YahooProvider) WithHTTPClient(hc *http.Client) *YahooProvider {
	p.httpClient = hc
	return p
}

// rawValue unwraps Yahoo's {"raw": n, "fmt": "..."} number envelope.
type rawValue struct {
	Raw float64 `json:"raw"`
}

type chartMeta struct {
	RegularMarketPrice   float64 `json:"regularMarketPrice"`
	ChartPreviousClose   float64 `json:"chartPreviousClose"`
	RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
	FiftyTwoWeekHigh     float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow      float64 `json:"fiftyTwoWeekLow"`
	RegularMarketVolume  int64   `json:"regularMarketVolume"`
}

type chartBars struct {
	Open   []float64 `json:"open"`
	High   []float64 `json:"high"`
	Low    []float64 `json:"low"`
	Close  []float64 `json:"close"`
	Volume []int64   `json:"volume"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []chartBars `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type summaryResult struct {
	SummaryDetail struct {
		TrailingPE   rawValue `json:"trailingPE"`
		MarketCap    rawValue `json:"marketCap"`
		PriceToSales rawValue `json:"priceToSalesTrailing12Months"`
	} `json:"summaryDetail"`
	DefaultKeyStatistics struct {
		PriceToBook rawValue `json:"priceToBook"`
	} `json:"defaultKeyStatistics"`
	FinancialData struct {
		TargetMeanPrice         rawValue `json:"targetMeanPrice"`
		TargetHighPrice         rawValue `json:"targetHighPrice"`
		TargetLowPrice          rawValue `json:"targetLowPrice"`
		CurrentPrice            rawValue `json:"currentPrice"`
		RecommendationKey       string   `json:"recommendationKey"`
		NumberOfAnalystOpinions rawValue `json:"numberOfAnalystOpinions"`
	} `json:"financialData"`
	AssetProfile struct {
		Sector   string `json:"sector"`
		Industry string `json:"industry"`
	} `json:"assetProfile"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []summaryResult `json:"result"`
	} `json:"quoteSummary"`
}

// Quote returns the current quote with day and 52-week ranges.
func (p *YahooProvider) Quote(ctx context.Context, ticker string) (state.MarketData, error) {
	chart, err := p.fetchChart(ctx, ticker, "5d")
	if err != nil {
		return state.MarketData{}, err
	}
	meta := chart.Meta

	md := state.MarketData{
		Ticker:       ticker,
		CurrentPrice: meta.RegularMarketPrice,
		Volume:       meta.RegularMarketVolume,
		DayHigh:      meta.RegularMarketDayHigh,
		DayLow:       meta.RegularMarketDayLow,
		YearHigh:     meta.FiftyTwoWeekHigh,
		YearLow:      meta.FiftyTwoWeekLow,
	}
	if meta.ChartPreviousClose > 0 {
		md.ChangePercent = (meta.RegularMarketPrice - meta.ChartPreviousClose) / meta.ChartPreviousClose * 100
	}

	// The ratio fields live in a second endpoint; a failure there degrades
	// the quote instead of discarding it.
	if summary, err := p.fetchSummary(ctx, ticker); err != nil {
		p.logger.Warn("quote summary unavailable",
			zap.String("ticker", ticker), zap.Error(err))
	} else {
		md.PERatio = summary.SummaryDetail.TrailingPE.Raw
		md.MarketCap = int64(summary.SummaryDetail.MarketCap.Raw)
	}
	return md, nil
}

// PeerComparison positions the ticker's valuation ratios against its sector
// reference multiples.
func (p *YahooProvider) PeerComparison(ctx context.Context, ticker string) (state.PeerValuation, error) {
	summary, err := p.fetchSummary(ctx, ticker)
	if err != nil {
		return state.PeerValuation{}, err
	}

	pv := state.PeerValuation{
		Ticker:       ticker,
		Sector:       summary.AssetProfile.Sector,
		Industry:     summary.AssetProfile.Industry,
		PERatio:      summary.SummaryDetail.TrailingPE.Raw,
		PriceToBook:  summary.DefaultKeyStatistics.PriceToBook.Raw,
		PriceToSales: summary.SummaryDetail.PriceToSales.Raw,
	}
	if avg, ok := sectorAverages[pv.Sector]; ok {
		pv.SectorAvgPE = avg.PE
		pv.SectorAvgPB = avg.PB
		pv.SectorAvgPS = avg.PS
		pv.PEPremiumDiscount = PremiumDiscount(pv.PERatio, avg.PE)
		pv.PBPremiumDiscount = PremiumDiscount(pv.PriceToBook, avg.PB)
		pv.PSPremiumDiscount = PremiumDiscount(pv.PriceToSales, avg.PS)
	}
	return pv, nil
}

// AnalystConsensus returns forward-looking analyst guidance.
func (p *YahooProvider) AnalystConsensus(ctx context.Context, ticker string) (state.AnalystConsensus, error) {
	summary, err := p.fetchSummary(ctx, ticker)
	if err != nil {
		return state.AnalystConsensus{}, err
	}

	fd := summary.FinancialData
	ac := state.AnalystConsensus{
		Ticker:          ticker,
		TargetPriceMean: fd.TargetMeanPrice.Raw,
		TargetPriceHigh: fd.TargetHighPrice.Raw,
		TargetPriceLow:  fd.TargetLowPrice.Raw,
		CurrentPrice:    fd.CurrentPrice.Raw,
		Recommendation:  fd.RecommendationKey,
		NumAnalysts:     int(fd.NumberOfAnalystOpinions.Raw),
	}
	if ac.CurrentPrice > 0 && ac.TargetPriceMean > 0 {
		ac.UpsidePotential = (ac.TargetPriceMean - ac.CurrentPrice) / ac.CurrentPrice * 100
	}
	return ac, nil
}

// DailyHistory returns up to a year of daily bars, oldest first. Bars with a
// zero close are exchange holidays and are dropped.
func (p *YahooProvider) DailyHistory(ctx context.Context, ticker string) ([]state.PricePoint, error) {
	chart, err := p.fetchChart(ctx, ticker, "1y")
	if err != nil {
		return nil, err
	}
	if len(chart.Indicators.Quote) == 0 {
		return nil, nil
	}

	bars := chart.Indicators.Quote[0]
	points := make([]state.PricePoint, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		if i >= len(bars.Close) || bars.Close[i] == 0 {
			continue
		}
		points = append(points, state.PricePoint{
			Date:   time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Open:   at(bars.Open, i),
			High:   at(bars.High, i),
			Low:    at(bars.Low, i),
			Close:  bars.Close[i],
			Volume: atInt(bars.Volume, i),
		})
	}
	return points, nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, ticker, window string) (*chartResult, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d", p.baseURL, ticker, window)

	var res chartResponse
	if err := p.getJSON(ctx, url, &res); err != nil {
		return nil, err
	}
	if res.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnknownTicker, ticker, res.Chart.Error.Code)
	}
	if len(res.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return &res.Chart.Result[0], nil
}

func (p *YahooProvider) fetchSummary(ctx context.Context, ticker string) (*summaryResult, error) {
	url := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=summaryDetail,defaultKeyStatistics,financialData,assetProfile",
		p.baseURL, ticker)

	var res quoteSummaryResponse
	if err := p.getJSON(ctx, url, &res); err != nil {
		return nil, err
	}
	if len(res.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return &res.QuoteSummary.Result[0], nil
}

func (p *YahooProvider) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "minerva/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market data request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status 404", ErrUnknownTicker)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("market data rate limit: status 429")
	case resp.StatusCode >= 500:
		return fmt.Errorf("market data unavailable: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("market data request failed: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding market data response: %w", err)
	}
	return nil
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func atInt(vals []int64, i int) int64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}
