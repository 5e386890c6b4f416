package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/llm"
	"github.com/wehubfusion/Minerva/pkg/state"
)

const validateSystemPrompt = `You judge whether a user query is a meaningful investment research request.
A valid query asks about stocks, companies, markets, sectors, or the economy.
Respond with JSON only: {"valid": true|false, "reason": "..."}`

// ValidateNode checks that the query is a usable research request. Validation
// fails open: when the model cannot be reached the query is treated as valid
// so the run proceeds. Only an empty query is rejected outright.
func ValidateNode(completer llm.Completer) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeValidate,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			query := strings.TrimSpace(s.Query)
			if query == "" {
				tr.Step("empty query rejected")
				return state.Update{QueryValid: state.Ptr(false)}, nil
			}

			out, err := completer.Complete(ctx, llm.Request{
				System:      validateSystemPrompt,
				Prompt:      query,
				Temperature: 0,
				MaxTokens:   200,
			})
			if err != nil {
				tr.Step(fmt.Sprintf("validation unavailable, failing open: %v", err))
				return state.Update{QueryValid: state.Ptr(true)}, nil
			}

			var verdict struct {
				Valid  bool   `json:"valid"`
				Reason string `json:"reason"`
			}
			if err := llm.DecodeJSON(out, &verdict); err != nil {
				tr.Step(fmt.Sprintf("unparseable validation verdict, failing open: %v", err))
				return state.Update{QueryValid: state.Ptr(true)}, nil
			}

			tr.Step(fmt.Sprintf("validation verdict valid=%t: %s", verdict.Valid, verdict.Reason))
			return state.Update{QueryValid: state.Ptr(verdict.Valid)}, nil
		},
	}
}

const refineSystemPrompt = `You rewrite investment research queries to be precise and self-contained.
Expand vague references using the conversation when possible. Reply with the rewritten query only, no commentary.`

// RefineQueryNode rewrites the query into a sharper research question before
// classification. Invalid queries are passed through untouched, and any model
// failure keeps the original query.
func RefineQueryNode(completer llm.Completer) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeRefineQuery,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			if !s.QueryValid {
				tr.Step("query invalid, skipping refinement")
				return state.Update{RefinedQuery: state.Ptr(s.Query)}, nil
			}

			prompt := s.Query
			if len(s.History) > 0 {
				var b strings.Builder
				b.WriteString("Conversation so far:\n")
				for _, m := range s.History {
					fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
				}
				b.WriteString("\nQuery to rewrite: ")
				b.WriteString(s.Query)
				prompt = b.String()
			}

			out, err := completer.Complete(ctx, llm.Request{
				System:      refineSystemPrompt,
				Prompt:      prompt,
				Temperature: 0.3,
				MaxTokens:   200,
			})
			if err != nil {
				tr.Step(fmt.Sprintf("refinement unavailable, keeping original query: %v", err))
				return state.Update{RefinedQuery: state.Ptr(s.Query)}, nil
			}

			refined := strings.TrimSpace(llm.StripCodeFences(out))
			if refined == "" {
				refined = s.Query
			}
			tr.Step("refined query: " + refined)
			return state.Update{RefinedQuery: state.Ptr(refined)}, nil
		},
	}
}
