package research

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/marketdata"
	"github.com/wehubfusion/Minerva/pkg/state"
)

// VisualizeNode builds chart-ready bundles from the merged specialist
// outputs: a year of daily prices, 52-week range markers, peer comparison
// rows, and period stats. It reads peer valuations produced by the market
// data branch, which is why it runs strictly after the barrier rather than
// inside the fan-out.
func VisualizeNode(provider marketdata.Provider) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeVisualize,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			if len(s.MarketData) == 0 {
				tr.Step("no market data, skipping visualization")
				return state.Update{}, nil
			}

			peerRows := make([]state.PeerRatioRow, 0, len(s.PeerValuation))
			for _, pv := range s.PeerValuation {
				peerRows = append(peerRows, state.PeerRatioRow{
					Ticker:  pv.Ticker,
					PERatio: pv.PERatio,
					PBRatio: pv.PriceToBook,
					PSRatio: pv.PriceToSales,
				})
			}

			var bundles []state.VisualizationData
			for _, quote := range s.MarketData {
				viz := state.VisualizationData{
					Ticker:             quote.Ticker,
					Week52High:         quote.YearHigh,
					Week52Low:          quote.YearLow,
					CurrentPrice:       quote.CurrentPrice,
					CurrentPositionPct: quote.Week52Position,
					PeerComparison:     peerRows,
				}

				history, err := provider.DailyHistory(ctx, quote.Ticker)
				if err != nil {
					tr.Step(fmt.Sprintf("price history for %s unavailable: %v", quote.Ticker, err))
				} else {
					viz.PriceHistory = history
					viz.PeriodHigh, viz.PeriodLow, viz.AverageVolume = periodStats(history)
				}

				bundles = append(bundles, viz)
			}

			tr.Step(fmt.Sprintf("built %d visualization bundles", len(bundles)))
			return state.Update{Visualizations: bundles}, nil
		},
	}
}

func periodStats(history []state.PricePoint) (high, low float64, avgVolume int64) {
	if len(history) == 0 {
		return 0, 0, 0
	}
	high = history[0].High
	low = history[0].Low
	var totalVolume int64
	for _, p := range history {
		if p.High > high {
			high = p.High
		}
		if p.Low < low && p.Low > 0 {
			low = p.Low
		}
		totalVolume += p.Volume
	}
	return high, low, totalVolume / int64(len(history))
}
