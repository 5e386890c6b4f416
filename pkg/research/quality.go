package research

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/llm"
	"github.com/wehubfusion/Minerva/pkg/state"
)

const qualityGateSystemPrompt = `You are a compliance reviewer for investment research. Check the report for
fabricated numbers, unsupported claims, and missing risk language. Respond with JSON only:
{"passed": true|false, "score": 0.0-1.0, "issues": ["..."]}`

// QualityGateNode stamps a final pass/fail verdict onto the report metadata.
// The gate is advisory: a failed check or an unreachable reviewer never
// blocks the run, it is recorded for downstream consumers.
func QualityGateNode(completer llm.Completer) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeQualityGate,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			if s.Report == "" {
				tr.Step("no report to review")
				return state.Update{}, nil
			}

			metadata := &state.ReportMetadata{}
			if s.Metadata != nil {
				copied := *s.Metadata
				metadata = &copied
			}

			out, err := completer.Complete(ctx, llm.Request{
				System:      qualityGateSystemPrompt,
				Prompt:      s.Report,
				Temperature: 0,
				MaxTokens:   400,
			})
			if err != nil {
				// Fail open: the report stands, unreviewed.
				tr.Step(fmt.Sprintf("quality review unavailable, passing report through: %v", err))
				metadata.QualityPassed = true
				return state.Update{Metadata: metadata}, nil
			}

			var verdict struct {
				Passed bool     `json:"passed"`
				Score  float64  `json:"score"`
				Issues []string `json:"issues"`
			}
			if err := llm.DecodeJSON(out, &verdict); err != nil {
				tr.Step(fmt.Sprintf("unusable quality verdict, passing report through: %v", err))
				metadata.QualityPassed = true
				return state.Update{Metadata: metadata}, nil
			}

			tr.Step(fmt.Sprintf("quality gate passed=%t score=%.2f issues=%d",
				verdict.Passed, verdict.Score, len(verdict.Issues)))
			metadata.QualityPassed = verdict.Passed
			metadata.QualityScore = verdict.Score
			return state.Update{Metadata: metadata}, nil
		},
	}
}

// AggregateNode is the fan-in barrier: an empty business function that exists
// as the rendezvous point all dispatched branches converge on.
func AggregateNode() engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeAggregate,
		Fn: func(_ context.Context, _ *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			tr.Step("all dispatched branches merged")
			return state.Update{}, nil
		},
	}
}
