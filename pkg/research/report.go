package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/llm"
	"github.com/wehubfusion/Minerva/pkg/state"
)

// ReportConfig bounds the generate-evaluate-refine loop.
type ReportConfig struct {
	// MaxIterations is the total number of synthesis passes. Default: 3
	MaxIterations int

	// QualityThreshold is the normalized evaluation score at which the
	// report is accepted. Default: 0.85
	QualityThreshold float64
}

// Validate fills zero fields with defaults.
func (c *ReportConfig) Validate() error {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 3
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = 0.85
	}
	return nil
}

// templateFor maps an intent to a report template name.
func templateFor(intent state.Intent) string {
	switch intent {
	case state.IntentPriceQuery:
		return "brief_market"
	case state.IntentSentimentAnalysis:
		return "sentiment_focused"
	case state.IntentComparison:
		return "peer_comparison"
	default:
		return "comprehensive"
	}
}

const synthesizeSystemPrompt = `You are a senior investment research analyst. Write a clear, structured research
report in markdown from the data provided. Cite concrete numbers. Never invent data that is
not in the input; name missing data sources instead.`

const evaluateSystemPrompt = `You review investment research reports. Score the report for completeness, accuracy
relative to the supplied data, and clarity. Respond with JSON only:
{"score": 0.0-1.0, "gaps": ["..."]}`

// ReportNode synthesizes the final report from the merged specialist outputs
// using a bounded generate-evaluate-refine loop. An evaluation failure
// accepts the current draft, and a synthesis failure falls back to a plain
// data summary; the node never returns an empty report while any data or
// query text exists.
func ReportNode(completer llm.Completer, cfg ReportConfig) engine.NodeFunc {
	_ = cfg.Validate()
	return engine.NodeFunc{
		NodeName: NodeReport,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			template := templateFor(s.Intent)
			excerpt := buildStateExcerpt(s)
			tr.Step(fmt.Sprintf("template %s selected for intent %s", template, s.Intent))

			report, iterations := reflectionLoop(ctx, completer, cfg, s, template, excerpt, tr)
			if strings.TrimSpace(report) == "" {
				report = fallbackReport(s)
				tr.Step("synthesis produced nothing, using fallback report")
			}

			snapshot := generateSnapshot(ctx, completer, s, tr)

			metadata := &state.ReportMetadata{
				ExecutedNodes:        append([]string(nil), s.ExecutedNodes...),
				DataSources:          dataSourceAvailability(s),
				Intent:               string(s.Intent),
				Tickers:              append([]string(nil), s.Tickers...),
				ReportTemplate:       template,
				RefinementIterations: iterations,
			}

			return state.Update{
				Report:   state.Ptr(report),
				Snapshot: snapshot,
				Metadata: metadata,
			}, nil
		},
	}
}

// reflectionLoop runs synthesis passes until the evaluator is satisfied or
// the iteration budget runs out. Returns the accepted report and the number
// of synthesis passes that ran.
func reflectionLoop(ctx context.Context, completer llm.Completer, cfg ReportConfig,
	s *state.WorkflowState, template, excerpt string, tr *engine.Trace) (string, int) {

	var report string
	var feedback []string

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		prompt := synthesisPrompt(s, template, excerpt, report, feedback)
		out, err := completer.Complete(ctx, llm.Request{
			System:      synthesizeSystemPrompt,
			Prompt:      prompt,
			Temperature: 0.4,
			MaxTokens:   2000,
		})
		if err != nil {
			tr.Step(fmt.Sprintf("synthesis pass %d failed: %v", iteration, err))
			return report, iteration
		}
		report = strings.TrimSpace(llm.StripCodeFences(out))
		tr.Step(fmt.Sprintf("synthesis pass %d produced %d chars", iteration, len(report)))

		if iteration == cfg.MaxIterations {
			return report, iteration
		}

		score, gaps, err := evaluateReport(ctx, completer, report, excerpt)
		if err != nil {
			// Accept the current draft rather than looping on a broken
			// evaluator.
			tr.Step(fmt.Sprintf("evaluation failed, accepting current report: %v", err))
			return report, iteration
		}
		tr.Step(fmt.Sprintf("quality score %.2f (threshold %.2f)", score, cfg.QualityThreshold))
		if score >= cfg.QualityThreshold {
			return report, iteration
		}
		feedback = gaps
	}
	return report, cfg.MaxIterations
}

func synthesisPrompt(s *state.WorkflowState, template, excerpt, previous string, feedback []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report template: %s\nUser query: %s\n\nAvailable data:\n%s\n", template, s.Query, excerpt)
	if previous != "" {
		b.WriteString("\nPrevious draft:\n")
		b.WriteString(previous)
		b.WriteString("\n\nReviewer feedback to address:\n")
		for _, gap := range feedback {
			b.WriteString("- " + gap + "\n")
		}
		b.WriteString("\nProduce an improved report.")
	}
	return b.String()
}

func evaluateReport(ctx context.Context, completer llm.Completer, report, excerpt string) (float64, []string, error) {
	out, err := completer.Complete(ctx, llm.Request{
		System:      evaluateSystemPrompt,
		Prompt:      fmt.Sprintf("Data provided to the author:\n%s\n\nReport under review:\n%s", excerpt, report),
		Temperature: 0,
		MaxTokens:   400,
	})
	if err != nil {
		return 0, nil, err
	}

	var verdict struct {
		Score float64  `json:"score"`
		Gaps  []string `json:"gaps"`
	}
	if err := llm.DecodeJSON(out, &verdict); err != nil {
		return 0, nil, err
	}
	return verdict.Score, verdict.Gaps, nil
}

// buildStateExcerpt renders the merged specialist outputs as the synthesis
// input. Only populated sections appear.
func buildStateExcerpt(s *state.WorkflowState) string {
	var b strings.Builder

	for _, md := range s.MarketData {
		fmt.Fprintf(&b, "Market data %s: price %.2f, change %.2f%%, P/E %.2f, 52w range %.2f-%.2f",
			md.Ticker, md.CurrentPrice, md.ChangePercent, md.PERatio, md.YearLow, md.YearHigh)
		if md.TrendSignal != "" {
			fmt.Fprintf(&b, ", trend %s", md.TrendSignal)
		}
		b.WriteString("\n")
	}
	for _, sa := range s.Sentiment {
		fmt.Fprintf(&b, "Sentiment %s: %s (confidence %.2f, %d articles): %s\n",
			sa.Ticker, sa.OverallSentiment, sa.Confidence, sa.NewsCount, sa.Summary)
	}
	for _, c := range s.Consensus {
		fmt.Fprintf(&b, "Analyst consensus %s: %s, mean target %.2f (%.1f%% upside, %d analysts)\n",
			c.Ticker, c.Recommendation, c.TargetPriceMean, c.UpsidePotential, c.NumAnalysts)
	}
	for _, pv := range s.PeerValuation {
		fmt.Fprintf(&b, "Peer valuation %s (%s): P/E %.2f vs sector %.2f (%+.1f%%), %d peers\n",
			pv.Ticker, pv.Sector, pv.PERatio, pv.SectorAvgPE, pv.PEPremiumDiscount, pv.PeerCount)
	}
	for i, doc := range s.Documents {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "Context [%s/%s]: %s\n", doc.Source, doc.Ticker, doc.Text)
	}

	if b.Len() == 0 {
		b.WriteString("No specialist data was collected for this query.\n")
	}
	if len(s.NodeErrors) > 0 {
		b.WriteString("Unavailable sources:")
		for node := range s.NodeErrors {
			b.WriteString(" " + node)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// fallbackReport is the no-model rendition: a plain summary of whatever data
// made it into the state.
func fallbackReport(s *state.WorkflowState) string {
	var b strings.Builder
	b.WriteString("# Research Summary\n\n")
	if !s.QueryValid {
		fmt.Fprintf(&b, "The query %q could not be interpreted as an investment research request, so no data sources were consulted.\n", s.Query)
		return b.String()
	}

	fmt.Fprintf(&b, "Query: %s\n\n", s.Query)
	excerpt := buildStateExcerpt(s)
	b.WriteString(excerpt)
	b.WriteString("\nAutomated synthesis was unavailable for this run; the raw findings above are reported as collected.\n")
	return b.String()
}

const snapshotSystemPrompt = `You are a financial advisor helping beginner investors. Generate clear, simple
snapshots in JSON format. Be concise and avoid technical jargon. Respond with JSON only:
{"investment_rating": "strong_buy|buy|hold|sell|strong_sell", "rating_explanation": "1-2 sentences",
"key_highlights": ["3-5 points"], "risk_warnings": ["2-3 points"]}`

// generateSnapshot builds the beginner-investor snapshot for the primary
// ticker. Missing market data or a failed model call yields no snapshot,
// never an error.
func generateSnapshot(ctx context.Context, completer llm.Completer, s *state.WorkflowState, tr *engine.Trace) *state.InvestorSnapshot {
	ticker := s.PrimaryTicker()
	if ticker == "" || len(s.MarketData) == 0 {
		return nil
	}

	var quote *state.MarketData
	for i := range s.MarketData {
		if s.MarketData[i].Ticker == ticker {
			quote = &s.MarketData[i]
			break
		}
	}
	if quote == nil {
		return nil
	}

	out, err := completer.Complete(ctx, llm.Request{
		System:      snapshotSystemPrompt,
		Prompt:      fmt.Sprintf("Investment data for %s:\n%s", ticker, buildStateExcerpt(s)),
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		tr.Step(fmt.Sprintf("snapshot generation failed: %v", err))
		return nil
	}

	var verdict struct {
		InvestmentRating  string   `json:"investment_rating"`
		RatingExplanation string   `json:"rating_explanation"`
		KeyHighlights     []string `json:"key_highlights"`
		RiskWarnings      []string `json:"risk_warnings"`
	}
	if err := llm.DecodeJSON(out, &verdict); err != nil {
		tr.Step(fmt.Sprintf("unusable snapshot verdict: %v", err))
		return nil
	}

	return &state.InvestorSnapshot{
		Ticker:            ticker,
		CurrentPrice:      quote.CurrentPrice,
		PriceChangePct:    quote.ChangePercent,
		MarketCap:         quote.MarketCap,
		PERatio:           quote.PERatio,
		InvestmentRating:  verdict.InvestmentRating,
		RatingExplanation: verdict.RatingExplanation,
		KeyHighlights:     verdict.KeyHighlights,
		RiskWarnings:      verdict.RiskWarnings,
	}
}

// dataSourceAvailability reports, per specialist, whether usable data exists
// and the producing node did not fail.
func dataSourceAvailability(s *state.WorkflowState) map[string]bool {
	ok := func(node string, hasData bool) bool {
		_, failed := s.NodeErrors[node]
		return hasData && !failed
	}
	return map[string]bool{
		"market_data":     ok(NodeMarketData, len(s.MarketData) > 0),
		"sentiment":       ok(NodeSentiment, len(s.Sentiment) > 0),
		"forward_looking": ok(NodeForwardLooking, len(s.Consensus) > 0),
		"retrieved_docs":  ok(NodeRetrieveDocs, len(s.Documents) > 0),
		"visualization":   ok(NodeVisualize, len(s.Visualizations) > 0),
	}
}
