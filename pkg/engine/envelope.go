package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/state"
)

// Recorder receives node execution telemetry. The metrics package provides a
// Prometheus implementation; tests use NopRecorder.
type Recorder interface {
	ObserveNode(node string, duration time.Duration, success bool)
	NodeRetried(node string)
}

// NopRecorder discards all telemetry.
type NopRecorder struct{}

func (NopRecorder) ObserveNode(string, time.Duration, bool) {}
func (NopRecorder) NodeRetried(string)                      {}

// EnvelopeConfig controls the retry behavior applied to every node.
type EnvelopeConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the backoff unit. The wait before retry n is
	// BaseDelay * 2^n, counting retries from zero.
	// Default: 1s
	BaseDelay time.Duration
}

// DefaultEnvelopeConfig returns the standard retry settings.
func DefaultEnvelopeConfig() EnvelopeConfig {
	return EnvelopeConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Validate fills zero fields with defaults.
func (c *EnvelopeConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	return nil
}

// Envelope wraps a node with the uniform execution contract: bounded retry
// with exponential backoff for transient errors, error classification,
// reasoning-trace capture, and telemetry. Execute never fails the run; a node
// that exhausts its attempts is recorded on the state as a node error and the
// workflow continues.
type Envelope struct {
	node     Node
	cfg      EnvelopeConfig
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer

	// sleep is replaceable in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEnvelope wraps node with the execution contract. A nil logger or
// recorder is replaced with a no-op.
func NewEnvelope(node Node, cfg EnvelopeConfig, logger *zap.Logger, recorder Recorder) *Envelope {
	_ = cfg.Validate()
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Envelope{
		node:     node,
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		tracer:   otel.Tracer("minerva/engine"),
		sleep:    sleepCtx,
	}
}

// Execute runs the node against the given state snapshot and returns the
// update to merge, bookkeeping included. The returned update always carries
// the node in executed-nodes, its metrics, and its reasoning trace; on
// failure it additionally carries the error-list entry and error-map entry.
func (e *Envelope) Execute(ctx context.Context, s *state.WorkflowState) state.Update {
	name := e.node.Name()
	ctx, span := e.tracer.Start(ctx, "node."+name,
		trace.WithAttributes(
			attribute.String("workflow.run_id", s.RunID),
			attribute.String("node.name", name),
		))
	defer span.End()

	tr := &Trace{}
	start := time.Now()

	var update state.Update
	var lastErr error
	attempts := 0

	for attempts < e.cfg.MaxAttempts {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		attempts++

		update, lastErr = e.node.Run(ctx, s, tr)
		if lastErr == nil {
			break
		}

		e.logger.Warn("node attempt failed",
			zap.String("node", name),
			zap.Int("attempt", attempts),
			zap.Error(lastErr))
		span.RecordError(lastErr)

		if !IsTransient(lastErr) || attempts >= e.cfg.MaxAttempts {
			break
		}

		// Retries count from zero: the wait after the first failure is
		// BaseDelay * 2^0.
		delay := e.cfg.BaseDelay * (1 << (attempts - 1))
		e.recorder.NodeRetried(name)
		tr.Step(fmt.Sprintf("transient error, retrying in %s: %v", delay, lastErr))
		if err := e.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	elapsed := time.Since(start)
	success := lastErr == nil
	e.recorder.ObserveNode(name, elapsed, success)
	span.SetAttributes(
		attribute.Int64("node.duration_ms", elapsed.Milliseconds()),
		attribute.Int("node.attempts", attempts),
	)

	bookkeeping := state.Update{
		ExecutedNodes: []string{name},
		NodeMetrics: map[string]state.NodeMetrics{
			name: {Duration: elapsed, Attempts: attempts, Success: success},
		},
	}
	if steps := tr.Steps(); len(steps) > 0 {
		bookkeeping.Traces = map[string][]string{name: steps}
	}

	if !success {
		span.SetStatus(codes.Error, lastErr.Error())
		e.logger.Error("node failed",
			zap.String("node", name),
			zap.Int("attempts", attempts),
			zap.Duration("duration", elapsed),
			zap.Error(lastErr))
		bookkeeping.Errors = []string{fmt.Sprintf("%s: %v", name, lastErr)}
		bookkeeping.NodeErrors = map[string]string{name: lastErr.Error()}
		return bookkeeping
	}

	span.SetStatus(codes.Ok, "node completed")
	e.logger.Info("node completed",
		zap.String("node", name),
		zap.Int("attempts", attempts),
		zap.Duration("duration", elapsed))
	return state.Merge(update, bookkeeping)
}

// Name returns the wrapped node's name.
func (e *Envelope) Name() string { return e.node.Name() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
