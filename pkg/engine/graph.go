package engine

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/state"
)

// Router selects which branch nodes to dispatch at a conditional edge. It
// must be a pure function of the state and must return a duplicate-free list.
type Router func(s *state.WorkflowState) []string

type conditionalEdge struct {
	from    string
	route   Router
	targets map[string]bool
	join    string
}

// Graph is a directed workflow of enveloped nodes. The topology is fixed at
// build time: unconditional edges chain nodes one after another, and a single
// conditional edge fans out to a router-chosen subset of branch nodes that
// all converge on a join node. A node with no outgoing edge is terminal.
type Graph struct {
	nodes  map[string]*Envelope
	edges  map[string]string
	cond   *conditionalEdge
	entry  string
	logger *zap.Logger
	tracer trace.Tracer
}

// NewGraph returns an empty graph.
func NewGraph(logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		nodes:  map[string]*Envelope{},
		edges:  map[string]string{},
		logger: logger,
		tracer: otel.Tracer("minerva/engine"),
	}
}

// AddNode registers an enveloped node under its name.
func (g *Graph) AddNode(env *Envelope) error {
	name := env.Name()
	if name == "" {
		return fmt.Errorf("%w: node name is empty", ErrInvalidInput)
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("%w: duplicate node %q", ErrInvalidInput, name)
	}
	g.nodes[name] = env
	return nil
}

// AddEdge wires an unconditional transition.
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("%w: unknown edge source %q", ErrInvalidInput, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("%w: unknown edge target %q", ErrInvalidInput, to)
	}
	if _, dup := g.edges[from]; dup {
		return fmt.Errorf("%w: node %q already has an outgoing edge", ErrInvalidInput, from)
	}
	g.edges[from] = to
	return nil
}

// SetConditional wires the fan-out edge: after from executes, route picks a
// subset of targets to run concurrently, and execution resumes at join once
// all selected branches have completed and merged.
func (g *Graph) SetConditional(from string, route Router, targets []string, join string) error {
	if g.cond != nil {
		return fmt.Errorf("%w: conditional edge already set", ErrInvalidInput)
	}
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("%w: unknown conditional source %q", ErrInvalidInput, from)
	}
	if _, ok := g.nodes[join]; !ok {
		return fmt.Errorf("%w: unknown join node %q", ErrInvalidInput, join)
	}
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		if _, ok := g.nodes[t]; !ok {
			return fmt.Errorf("%w: unknown branch target %q", ErrInvalidInput, t)
		}
		set[t] = true
	}
	g.cond = &conditionalEdge{from: from, route: route, targets: set, join: join}
	return nil
}

// SetEntry fixes the node the run starts at.
func (g *Graph) SetEntry(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return fmt.Errorf("%w: unknown entry node %q", ErrInvalidInput, name)
	}
	g.entry = name
	return nil
}

// Run drives the state from the entry node to a terminal node, merging each
// node's update into the state as it goes. Node failures are absorbed by the
// envelopes; Run itself only errors on context cancellation or a broken
// topology.
func (g *Graph) Run(ctx context.Context, s *state.WorkflowState) error {
	if g.entry == "" {
		return fmt.Errorf("%w: graph entry not set", ErrInvalidInput)
	}

	ctx, span := g.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.run_id", s.RunID),
			attribute.String("workflow.session_id", s.SessionID),
		))
	defer span.End()

	current := g.entry
	for {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "run cancelled")
			return err
		}

		env, ok := g.nodes[current]
		if !ok {
			return fmt.Errorf("%w: node %q not registered", ErrInvalidInput, current)
		}

		g.logger.Debug("executing node",
			zap.String("run_id", s.RunID),
			zap.String("node", current))
		state.Apply(s, env.Execute(ctx, s))

		if g.cond != nil && g.cond.from == current {
			if err := g.fanOut(ctx, s); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			current = g.cond.join
			continue
		}

		next, ok := g.edges[current]
		if !ok {
			span.SetAttributes(attribute.Int("workflow.executed_nodes", len(s.ExecutedNodes)))
			span.SetStatus(codes.Ok, "run completed")
			return nil
		}
		current = next
	}
}

// fanOut dispatches the router's chosen branches concurrently, each against
// its own snapshot of the merged state, then folds the branch updates back in
// dispatch order so runs are deterministic.
func (g *Graph) fanOut(ctx context.Context, s *state.WorkflowState) error {
	selected := g.cond.route(s)
	for _, name := range selected {
		if !g.cond.targets[name] {
			return fmt.Errorf("%w: router selected unknown branch %q", ErrInvalidInput, name)
		}
	}

	g.logger.Info("dispatching branches",
		zap.String("run_id", s.RunID),
		zap.Strings("branches", selected))

	updates := make([]state.Update, len(selected))
	var wg sync.WaitGroup
	for i, name := range selected {
		wg.Add(1)
		go func(i int, env *Envelope, snapshot *state.WorkflowState) {
			defer wg.Done()
			updates[i] = env.Execute(ctx, snapshot)
		}(i, g.nodes[name], s.Clone())
	}
	wg.Wait()

	for _, u := range updates {
		state.Apply(s, u)
	}
	return nil
}
