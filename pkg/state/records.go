package state

// MarketData holds a single ticker's quote and 52-week trend analysis.
type MarketData struct {
	Ticker        string  `json:"ticker"`
	CurrentPrice  float64 `json:"current_price,omitempty"`
	ChangePercent float64 `json:"change_percent,omitempty"`
	Volume        int64   `json:"volume,omitempty"`
	MarketCap     int64   `json:"market_cap,omitempty"`
	PERatio       float64 `json:"pe_ratio,omitempty"`
	DayHigh       float64 `json:"day_high,omitempty"`
	DayLow        float64 `json:"day_low,omitempty"`
	YearHigh      float64 `json:"year_high,omitempty"`
	YearLow       float64 `json:"year_low,omitempty"`

	// Position of the current price inside the 52-week range, 0-100.
	// Pointers distinguish "at the low" (0) from "range unavailable".
	Week52Position   *float64 `json:"week_52_position,omitempty"`
	DistanceFromHigh *float64 `json:"distance_from_high,omitempty"`
	DistanceFromLow  *float64 `json:"distance_from_low,omitempty"`
	TrendSignal      string   `json:"trend_signal,omitempty"`
}

// SentimentAnalysis summarizes recent news sentiment for one ticker.
type SentimentAnalysis struct {
	Ticker           string   `json:"ticker"`
	OverallSentiment string   `json:"overall_sentiment"`
	Confidence       float64  `json:"confidence"`
	KeyThemes        []string `json:"key_themes"`
	NewsCount        int      `json:"news_count"`
	Summary          string   `json:"summary"`
}

// AnalystConsensus carries forward-looking analyst guidance for one ticker.
type AnalystConsensus struct {
	Ticker          string  `json:"ticker"`
	TargetPriceMean float64 `json:"target_price_mean,omitempty"`
	TargetPriceHigh float64 `json:"target_price_high,omitempty"`
	TargetPriceLow  float64 `json:"target_price_low,omitempty"`
	CurrentPrice    float64 `json:"current_price,omitempty"`
	UpsidePotential float64 `json:"upside_potential,omitempty"`
	Recommendation  string  `json:"recommendation,omitempty"`
	NumAnalysts     int     `json:"num_analysts,omitempty"`
}

// PeerValuation compares a ticker's valuation ratios against sector averages.
// Premium/discount fields are percentages, positive meaning the company trades
// at a premium to its sector.
type PeerValuation struct {
	Ticker            string  `json:"ticker"`
	Sector            string  `json:"sector,omitempty"`
	Industry          string  `json:"industry,omitempty"`
	PERatio           float64 `json:"pe_ratio,omitempty"`
	PriceToBook       float64 `json:"price_to_book,omitempty"`
	PriceToSales      float64 `json:"price_to_sales,omitempty"`
	SectorAvgPE       float64 `json:"sector_avg_pe,omitempty"`
	SectorAvgPB       float64 `json:"sector_avg_pb,omitempty"`
	SectorAvgPS       float64 `json:"sector_avg_ps,omitempty"`
	PEPremiumDiscount float64 `json:"pe_premium_discount,omitempty"`
	PBPremiumDiscount float64 `json:"pb_premium_discount,omitempty"`
	PSPremiumDiscount float64 `json:"ps_premium_discount,omitempty"`
	PeerCount         int     `json:"peer_count"`
}

// RetrievedContext is a single scored document returned by semantic search.
type RetrievedContext struct {
	Text       string         `json:"text"`
	Source     string         `json:"source"`
	Ticker     string         `json:"ticker"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PricePoint is one daily bar of price history.
type PricePoint struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// PeerRatioRow is one ticker's valuation ratios inside a peer comparison chart.
type PeerRatioRow struct {
	Ticker  string  `json:"ticker"`
	PERatio float64 `json:"pe_ratio,omitempty"`
	PBRatio float64 `json:"pb_ratio,omitempty"`
	PSRatio float64 `json:"ps_ratio,omitempty"`
}

// VisualizationData is the chart-ready bundle for one ticker: a year of daily
// prices, 52-week range markers, and a peer comparison table.
type VisualizationData struct {
	Ticker             string         `json:"ticker"`
	PriceHistory       []PricePoint   `json:"price_history"`
	Week52High         float64        `json:"week_52_high,omitempty"`
	Week52Low          float64        `json:"week_52_low,omitempty"`
	CurrentPrice       float64        `json:"current_price,omitempty"`
	CurrentPositionPct *float64       `json:"current_position_pct,omitempty"`
	PeerComparison     []PeerRatioRow `json:"peer_comparison,omitempty"`
	PeriodHigh         float64        `json:"period_high,omitempty"`
	PeriodLow          float64        `json:"period_low,omitempty"`
	AverageVolume      int64          `json:"average_volume,omitempty"`
}

// InvestorSnapshot is a simplified one-ticker verdict aimed at beginner
// investors: a rating, a short explanation, and a handful of highlights
// and risk warnings.
type InvestorSnapshot struct {
	Ticker            string   `json:"ticker"`
	CurrentPrice      float64  `json:"current_price,omitempty"`
	PriceChangePct    float64  `json:"price_change_pct,omitempty"`
	MarketCap         int64    `json:"market_cap,omitempty"`
	PERatio           float64  `json:"pe_ratio,omitempty"`
	InvestmentRating  string   `json:"investment_rating"`
	RatingExplanation string   `json:"rating_explanation"`
	KeyHighlights     []string `json:"key_highlights"`
	RiskWarnings      []string `json:"risk_warnings"`
}

// ReportMetadata records how a report was produced.
type ReportMetadata struct {
	ExecutedNodes        []string        `json:"executed_nodes"`
	DataSources          map[string]bool `json:"data_sources"`
	Intent               string          `json:"intent"`
	Tickers              []string        `json:"tickers"`
	ReportTemplate       string          `json:"report_template"`
	RefinementIterations int             `json:"refinement_iterations"`
	QualityScore         float64         `json:"quality_score,omitempty"`
	QualityPassed        bool            `json:"quality_passed"`
}
