// Package engine implements the workflow machinery: the node contract, the
// execution envelope that wraps every node with retry and telemetry, and the
// graph scheduler that drives a run from entry to terminal state.
package engine

import (
	"context"

	"github.com/wehubfusion/Minerva/pkg/state"
)

// Node is one unit of work in the workflow graph. Run reads the state
// snapshot it is handed and returns a partial update; it must never mutate
// the snapshot's accumulators directly. Errors returned from Run are handled
// by the envelope, classified and possibly retried, and always end up as
// bookkeeping on the state rather than as a run failure.
type Node interface {
	Name() string
	Run(ctx context.Context, s *state.WorkflowState, tr *Trace) (state.Update, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc struct {
	NodeName string
	Fn       func(ctx context.Context, s *state.WorkflowState, tr *Trace) (state.Update, error)
}

// Name returns the node's graph name.
func (n NodeFunc) Name() string { return n.NodeName }

// Run invokes the wrapped function.
func (n NodeFunc) Run(ctx context.Context, s *state.WorkflowState, tr *Trace) (state.Update, error) {
	return n.Fn(ctx, s, tr)
}

// Trace accumulates a node's reasoning steps across all attempts of one
// envelope execution. The envelope flushes it into the state's trace map
// keyed by node name.
type Trace struct {
	steps []string
}

// Step appends one reasoning entry.
func (t *Trace) Step(entry string) {
	t.steps = append(t.steps, entry)
}

// Steps returns the recorded entries in order.
func (t *Trace) Steps() []string {
	return t.steps
}
