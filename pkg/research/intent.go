package research

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/llm"
	"github.com/wehubfusion/Minerva/pkg/marketdata"
	"github.com/wehubfusion/Minerva/pkg/state"
)

// knownSymbols validates bare uppercase tokens before accepting them as
// tickers; the resolver handles company names and everything else.
var knownSymbols = map[string]bool{
	"AAPL": true, "MSFT": true, "GOOGL": true, "AMZN": true, "TSLA": true,
	"META": true, "NVDA": true, "JPM": true, "V": true, "WMT": true,
	"JNJ": true, "PG": true, "MA": true, "UNH": true, "HD": true, "DIS": true,
}

var (
	symbolPattern     = regexp.MustCompile(`\b([A-Z]{1,5})\b`)
	capitalizedPhrase = regexp.MustCompile(`\b([A-Z][a-zA-Z&]+(?:\s+[A-Z][a-zA-Z]+)*)\b`)
	phraseSeparator   = regexp.MustCompile(`(?i)\s+(?:and|vs|versus|,)\s+`)
	leadingQuestion   = regexp.MustCompile(`(?i)^(?:what|how|when|where|why|who|which)\s+(?:is|are|about)?\s*`)
)

var extractionStopwords = map[string]bool{
	"What": true, "How": true, "When": true, "Where": true, "Why": true,
	"Who": true, "Which": true, "The": true, "Is": true, "Are": true,
	"Can": true, "Could": true, "Should": true, "Would": true,
	"Give": true, "Tell": true, "Show": true, "Analyze": true,
	"Compare": true, "Research": true,
}

// ExtractTickers pulls subject identifiers from a query: explicit symbols,
// company names resolved through the resolver, and compound phrases like
// "Microsoft and Google". The result is sorted and duplicate-free.
func ExtractTickers(ctx context.Context, query string, resolver *marketdata.Resolver) []string {
	found := map[string]bool{}

	for _, m := range symbolPattern.FindAllString(strings.ToUpper(query), -1) {
		if knownSymbols[m] {
			found[m] = true
		}
	}

	for _, phrase := range capitalizedPhrase.FindAllString(query, -1) {
		if extractionStopwords[phrase] || len(phrase) < 2 {
			continue
		}
		if ticker, ok := resolver.Resolve(ctx, phrase); ok {
			found[ticker] = true
			continue
		}
		// Greedy matching can glue a leading verb to a name, as in
		// "Compare Apple". Retry the words individually.
		for _, word := range strings.Fields(phrase) {
			if extractionStopwords[word] {
				continue
			}
			if ticker, ok := resolver.Resolve(ctx, word); ok {
				found[ticker] = true
			}
		}
	}

	for _, phrase := range phraseSeparator.Split(query, -1) {
		phrase = strings.TrimSpace(leadingQuestion.ReplaceAllString(strings.TrimSpace(phrase), ""))
		if len(phrase) <= 2 {
			continue
		}
		if ticker, ok := resolver.Resolve(ctx, phrase); ok {
			found[ticker] = true
		}
	}

	tickers := make([]string, 0, len(found))
	for t := range found {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

const classifySystemPrompt = `You are an expert investment query analyzer. Identify the PRIMARY intent and set
data-source flags to true only when the query explicitly needs them. Be conservative: when in
doubt, set a flag to false. Always respond with valid JSON.`

const classifyPromptTemplate = `Analyze this investment research query.

Intent types:
- price_query: current price or market data only (market_data=true)
- fundamental_analysis: financial metrics, valuation, ratios (market_data=true, context=true)
- sentiment_analysis: news, market sentiment (market_data=true, sentiment=true)
- general_research: comprehensive analysis (all flags true)
- comparison: compare multiple stocks (market_data=true, context=true)

If no tickers were found, retrieve_context should be true.

User query: %q
Tickers found: %s

Respond in JSON:
{"intent": "<intent>", "fetch_market_data": <bool>, "analyze_sentiment": <bool>, "retrieve_context": <bool>, "reasoning": "<short>"}`

// ClassifyIntentNode extracts subject identifiers and classifies the query's
// intent into dispatch flags. Classification fails open: when the model is
// unreachable the run falls back to comprehensive research for queries with
// identifiers, and to context retrieval alone for queries without.
func ClassifyIntentNode(completer llm.Completer, resolver *marketdata.Resolver) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeClassifyIntent,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			if !s.QueryValid {
				tr.Step("query invalid, skipping classification")
				return state.Update{}, nil
			}

			query := s.RefinedQuery
			if query == "" {
				query = s.Query
			}

			tickers := ExtractTickers(ctx, query, resolver)
			tr.Step(fmt.Sprintf("extracted tickers: %v", tickers))

			tickersDesc := "None"
			if len(tickers) > 0 {
				tickersDesc = strings.Join(tickers, ", ")
			}

			out, err := completer.Complete(ctx, llm.Request{
				System:      classifySystemPrompt,
				Prompt:      fmt.Sprintf(classifyPromptTemplate, query, tickersDesc),
				Temperature: 0.2,
				MaxTokens:   250,
			})
			if err != nil {
				return fallbackClassification(tickers, tr, err), nil
			}

			var result struct {
				Intent          string `json:"intent"`
				FetchMarketData bool   `json:"fetch_market_data"`
				AnalyzeSent     bool   `json:"analyze_sentiment"`
				RetrieveContext bool   `json:"retrieve_context"`
				Reasoning       string `json:"reasoning"`
			}
			if err := llm.DecodeJSON(out, &result); err != nil {
				return fallbackClassification(tickers, tr, err), nil
			}

			intent := state.Intent(result.Intent)
			if !intent.Valid() {
				intent = state.IntentGeneralResearch
			}

			tr.Step(fmt.Sprintf("intent=%s market=%t sentiment=%t context=%t: %s",
				intent, result.FetchMarketData, result.AnalyzeSent, result.RetrieveContext, result.Reasoning))
			return state.Update{
				Intent:  state.Ptr(intent),
				Tickers: tickers,
				Flags: &state.DispatchFlags{
					MarketData: result.FetchMarketData,
					Sentiment:  result.AnalyzeSent,
					Context:    result.RetrieveContext,
				},
			}, nil
		},
	}
}

// fallbackClassification is the fail-open default: comprehensive research
// when identifiers exist, semantic search alone when they do not.
func fallbackClassification(tickers []string, tr *engine.Trace, cause error) state.Update {
	tr.Step(fmt.Sprintf("intent classification failed open: %v", cause))

	flags := state.DispatchFlags{Context: true}
	if len(tickers) > 0 {
		flags = state.DispatchFlags{MarketData: true, Sentiment: true, Context: true}
	}
	return state.Update{
		Intent:  state.Ptr(state.IntentGeneralResearch),
		Tickers: tickers,
		Flags:   &flags,
	}
}
