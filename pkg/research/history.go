package research

import (
	"context"
	"fmt"
	"time"

	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/memory"
	"github.com/wehubfusion/Minerva/pkg/state"
	"github.com/wehubfusion/Minerva/pkg/storage"
)

// historyLimit bounds how much conversation context a run carries.
const historyLimit = 10

// LoadHistoryNode pulls recent conversation history into the state. A store
// failure is tolerated; the run simply proceeds without context.
func LoadHistoryNode(store memory.Store) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodeLoadHistory,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			msgs, err := store.Load(ctx, s.SessionID, historyLimit)
			if err != nil {
				tr.Step(fmt.Sprintf("history unavailable, continuing without: %v", err))
				return state.Update{}, nil
			}
			tr.Step(fmt.Sprintf("loaded %d history messages", len(msgs)))
			if len(msgs) == 0 {
				return state.Update{}, nil
			}
			return state.Update{History: msgs}, nil
		},
	}
}

// PersistNode is the terminal node: it writes the exchange back to the
// conversation store and archives the finished report. Storage trouble is
// recorded in the trace but never fails the run; the report already exists.
func PersistNode(store memory.Store, archive storage.Archiver) engine.NodeFunc {
	return engine.NodeFunc{
		NodeName: NodePersist,
		Fn: func(ctx context.Context, s *state.WorkflowState, tr *engine.Trace) (state.Update, error) {
			now := time.Now().UTC()
			if err := store.Save(ctx, s.SessionID, state.Message{Role: "user", Content: s.Query, Timestamp: now}); err != nil {
				tr.Step(fmt.Sprintf("saving user message failed: %v", err))
			}
			if err := store.Save(ctx, s.SessionID, state.Message{Role: "assistant", Content: s.Report, Timestamp: now}); err != nil {
				tr.Step(fmt.Sprintf("saving report message failed: %v", err))
			}

			if archive != nil {
				url, err := archive.ArchiveReport(ctx, s)
				if err != nil {
					tr.Step(fmt.Sprintf("report archive failed: %v", err))
				} else {
					tr.Step("report archived: " + url)
				}
			}
			return state.Update{}, nil
		},
	}
}
