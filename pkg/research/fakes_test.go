package research

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/wehubfusion/Minerva/pkg/llm"
	"github.com/wehubfusion/Minerva/pkg/state"
)

// completerFunc adapts a function to llm.Completer.
type completerFunc func(ctx context.Context, req llm.Request) (string, error)

func (f completerFunc) Complete(ctx context.Context, req llm.Request) (string, error) {
	return f(ctx, req)
}

// scriptedCompleter dispatches on the system prompt so one fake serves every
// model-backed node in an integration run.
type scriptedCompleter struct {
	mu             sync.Mutex
	synthCalls     int
	evalCalls      int
	validateOut    string
	classifyOut    string
	synthOut       []string
	evalOut        []string
	errEverything  error
}

func (c *scriptedCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errEverything != nil {
		return "", c.errEverything
	}

	switch {
	case strings.Contains(req.System, "judge whether"):
		if c.validateOut == "" {
			return `{"valid": true, "reason": "research query"}`, nil
		}
		return c.validateOut, nil
	case strings.Contains(req.System, "rewrite investment research queries"):
		return req.Prompt, nil
	case strings.Contains(req.System, "query analyzer"):
		return c.classifyOut, nil
	case strings.Contains(req.System, "research analyst"):
		c.synthCalls++
		if len(c.synthOut) > 0 {
			out := c.synthOut[0]
			if len(c.synthOut) > 1 {
				c.synthOut = c.synthOut[1:]
			}
			return out, nil
		}
		return "## Report\nSteady as she goes.", nil
	case strings.Contains(req.System, "review investment research reports"):
		c.evalCalls++
		if len(c.evalOut) > 0 {
			out := c.evalOut[0]
			if len(c.evalOut) > 1 {
				c.evalOut = c.evalOut[1:]
			}
			return out, nil
		}
		return `{"score": 0.95, "gaps": []}`, nil
	case strings.Contains(req.System, "news sentiment"):
		return `{"overall_sentiment": "positive", "confidence": 0.8, "key_themes": ["earnings"], "summary": "Good quarter."}`, nil
	case strings.Contains(req.System, "financial advisor"):
		return `{"investment_rating": "hold", "rating_explanation": "Fairly valued.", "key_highlights": ["Strong cash flow"], "risk_warnings": ["Valuation risk"]}`, nil
	case strings.Contains(req.System, "compliance reviewer"):
		return `{"passed": true, "score": 0.9, "issues": []}`, nil
	}
	return "", errors.New("unexpected system prompt: " + req.System)
}

// fakeProvider serves canned data and can fail selected tickers.
type fakeProvider struct {
	mu         sync.Mutex
	failQuotes map[string]error
	quoteCalls map[string]int
}

func (p *fakeProvider) Quote(_ context.Context, ticker string) (state.MarketData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quoteCalls == nil {
		p.quoteCalls = map[string]int{}
	}
	p.quoteCalls[ticker]++
	if err, ok := p.failQuotes[ticker]; ok {
		return state.MarketData{}, err
	}
	return state.MarketData{
		Ticker: ticker, CurrentPrice: 190, ChangePercent: 1.2, PERatio: 28,
		YearHigh: 200, YearLow: 120, Volume: 1000000,
	}, nil
}

func (p *fakeProvider) PeerComparison(_ context.Context, ticker string) (state.PeerValuation, error) {
	return state.PeerValuation{Ticker: ticker, Sector: "Technology", PERatio: 28, SectorAvgPE: 24, PeerCount: 5}, nil
}

func (p *fakeProvider) AnalystConsensus(_ context.Context, ticker string) (state.AnalystConsensus, error) {
	return state.AnalystConsensus{Ticker: ticker, Recommendation: "buy", TargetPriceMean: 210, UpsidePotential: 10.5, NumAnalysts: 30}, nil
}

func (p *fakeProvider) DailyHistory(_ context.Context, ticker string) ([]state.PricePoint, error) {
	return []state.PricePoint{
		{Date: "2026-08-26", Open: 188, High: 191, Low: 186, Close: 189, Volume: 900000},
		{Date: "2026-08-27", Open: 189, High: 192, Low: 188, Close: 190, Volume: 1100000},
	}, nil
}

// fakeDocs returns one document per search.
type fakeDocs struct {
	err  error
	docs []state.RetrievedContext
}

func (d *fakeDocs) Search(_ context.Context, query, ticker, source string, topK int) ([]state.RetrievedContext, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.docs != nil {
		return d.docs, nil
	}
	return []state.RetrievedContext{{
		Text: "Filing excerpt relevant to " + query, Source: "edgar", Ticker: ticker, Similarity: 0.82,
	}}, nil
}
