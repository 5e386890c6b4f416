package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/llm"
	"github.com/wehubfusion/Minerva/pkg/marketdata"
	"github.com/wehubfusion/Minerva/pkg/state"
)

// MarketDataNode fetches quotes and peer valuations per ticker. Tickers fetch
// independently: one ticker's failure is traced and skipped so its siblings
// still produce data. The node itself only fails when every ticker failed.
func MarketDataNode(provider marketdata.Provider) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeMarketData,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			var quotes []state.MarketData
			var valuations []state.PeerValuation
			var failures []error

			for _, ticker := range s.Tickers {
				quote, err := provider.Quote(ctx, ticker)
				if err != nil {
					tr.Step(fmt.Sprintf("quote for %s failed: %v", ticker, err))
					failures = append(failures, fmt.Errorf("%s: %w", ticker, err))
					continue
				}
				marketdata.TrendAnalysis(&quote)
				quotes = append(quotes, quote)
				tr.Step(fmt.Sprintf("quote for %s: %.2f (%s)", ticker, quote.CurrentPrice, quote.TrendSignal))

				valuation, err := provider.PeerComparison(ctx, ticker)
				if err != nil {
					tr.Step(fmt.Sprintf("peer comparison for %s failed: %v", ticker, err))
					continue
				}
				valuations = append(valuations, valuation)
			}

			if len(quotes) == 0 && len(failures) > 0 {
				return state.Update{}, errors.Join(failures...)
			}
			return state.Update{MarketData: quotes, PeerValuation: valuations}, nil
		},
	}
}

// ForwardLookingNode fetches analyst consensus per ticker, independently.
func ForwardLookingNode(provider marketdata.Provider) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeForwardLooking,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			var consensus []state.AnalystConsensus
			var failures []error

			for _, ticker := range s.Tickers {
				c, err := provider.AnalystConsensus(ctx, ticker)
				if err != nil {
					tr.Step(fmt.Sprintf("consensus for %s failed: %v", ticker, err))
					failures = append(failures, fmt.Errorf("%s: %w", ticker, err))
					continue
				}
				consensus = append(consensus, c)
				tr.Step(fmt.Sprintf("consensus for %s: %s from %d analysts", ticker, c.Recommendation, c.NumAnalysts))
			}

			if len(consensus) == 0 && len(failures) > 0 {
				return state.Update{}, errors.Join(failures...)
			}
			return state.Update{Consensus: consensus}, nil
		},
	}
}

const sentimentSystemPrompt = `You analyze news sentiment for a stock. Given headlines and snippets, respond with
JSON only: {"overall_sentiment": "positive|neutral|negative", "confidence": 0.0-1.0,
"key_themes": ["..."], "summary": "one or two sentences"}`

// SentimentNode retrieves recent news per ticker and scores it with the
// model. A ticker with no news, or an unusable model verdict, falls back to a
// neutral read rather than failing the node.
func SentimentNode(docs DocumentStore, completer llm.Completer) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeSentiment,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			var analyses []state.SentimentAnalysis
			var failures []error

			for _, ticker := range s.Tickers {
				news, err := docs.Search(ctx, s.Query, ticker, "news", 8)
				if err != nil {
					tr.Step(fmt.Sprintf("news search for %s failed: %v", ticker, err))
					failures = append(failures, fmt.Errorf("%s: %w", ticker, err))
					continue
				}
				if len(news) == 0 {
					tr.Step(fmt.Sprintf("no news for %s, recording neutral", ticker))
					analyses = append(analyses, neutralSentiment(ticker, 0))
					continue
				}

				var prompt string
				for _, doc := range news {
					prompt += doc.Text + "\n"
				}
				out, err := completer.Complete(ctx, llm.Request{
					System:      sentimentSystemPrompt,
					Prompt:      fmt.Sprintf("Ticker: %s\nRecent news:\n%s", ticker, prompt),
					Temperature: 0.3,
					MaxTokens:   400,
				})
				if err != nil {
					tr.Step(fmt.Sprintf("sentiment model call for %s failed: %v", ticker, err))
					failures = append(failures, fmt.Errorf("%s: %w", ticker, err))
					continue
				}

				var verdict struct {
					OverallSentiment string   `json:"overall_sentiment"`
					Confidence       float64  `json:"confidence"`
					KeyThemes        []string `json:"key_themes"`
					Summary          string   `json:"summary"`
				}
				if err := llm.DecodeJSON(out, &verdict); err != nil {
					tr.Step(fmt.Sprintf("unusable sentiment verdict for %s, recording neutral: %v", ticker, err))
					analyses = append(analyses, neutralSentiment(ticker, len(news)))
					continue
				}

				analyses = append(analyses, state.SentimentAnalysis{
					Ticker:           ticker,
					OverallSentiment: verdict.OverallSentiment,
					Confidence:       verdict.Confidence,
					KeyThemes:        verdict.KeyThemes,
					NewsCount:        len(news),
					Summary:          verdict.Summary,
				})
				tr.Step(fmt.Sprintf("sentiment for %s: %s (%.2f)", ticker, verdict.OverallSentiment, verdict.Confidence))
			}

			if len(analyses) == 0 && len(failures) > 0 {
				return state.Update{}, errors.Join(failures...)
			}
			return state.Update{Sentiment: analyses}, nil
		},
	}
}

func neutralSentiment(ticker string, newsCount int) state.SentimentAnalysis {
	return state.SentimentAnalysis{
		Ticker:           ticker,
		OverallSentiment: "neutral",
		Confidence:       0.3,
		KeyThemes:        []string{},
		NewsCount:        newsCount,
		Summary:          "Insufficient news coverage for a sentiment read.",
	}
}

// RetrieveDocsNode runs semantic search over the document store, once per
// ticker when identifiers exist and once unfiltered when they do not.
func RetrieveDocsNode(docs DocumentStore) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeRetrieveDocs,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			query := s.RefinedQuery
			if query == "" {
				query = s.Query
			}

			tickers := s.Tickers
			if len(tickers) == 0 {
				tickers = []string{""}
			}

			var retrieved []state.RetrievedContext
			var failures []error
			for _, ticker := range tickers {
				results, err := docs.Search(ctx, query, ticker, "", 5)
				if err != nil {
					tr.Step(fmt.Sprintf("retrieval for %q failed: %v", ticker, err))
					failures = append(failures, err)
					continue
				}
				retrieved = append(retrieved, results...)
			}
			tr.Step(fmt.Sprintf("retrieved %d context documents", len(retrieved)))

			if len(retrieved) == 0 && len(failures) > 0 {
				return state.Update{}, errors.Join(failures...)
			}
			return state.Update{Documents: retrieved}, nil
		},
	}
}
