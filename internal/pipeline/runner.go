// ABOUTME: Standalone and batch orchestration of operation phases
// ABOUTME: Batches run each phase as a barrier across all actions so the user sees one combined prompt

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/telemetry"
)

// ErrBatchAborted marks batch actions that never executed because an
// earlier action in the same batch failed.
var ErrBatchAborted = errors.New("batch aborted")

// Authorizer is the part of the authorization engine the runner needs.
type Authorizer interface {
	RequestAuthorization(ctx context.Context, appID string, items []authz.Item) (authz.Response, error)
}

// Phase names used in logs, spans and metrics.
const (
	PhaseCheck       = "check"
	PhaseInteraction = "createInteraction"
	PhasePrepare     = "prepare"
	PhaseAuthorize   = "requestAuthorization"
	PhaseExecute     = "execute"
)

// Runner sequences operation phases.
type Runner struct {
	authorizer Authorizer
	tracker    *interaction.Tracker
	ids        clock.Generator
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// Config configures a Runner.
type Config struct {
	Authorizer Authorizer
	Tracker    *interaction.Tracker
	IDs        clock.Generator
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.IDs == nil {
		cfg.IDs = clock.UUIDGenerator{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.MustMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		authorizer: cfg.Authorizer,
		tracker:    cfg.Tracker,
		ids:        cfg.IDs,
		metrics:    cfg.Metrics,
		tracer:     otel.Tracer(telemetry.InstrumentationName),
		logger:     cfg.Logger.With("component", "pipeline"),
	}
}

// Run executes one operation standalone and returns its typed result.
func Run[A, D, E, R any](ctx context.Context, r *Runner, appID string, op Operation[A, D, E, R], args A) (R, error) {
	var zero R
	out, err := r.RunStep(ctx, appID, Bind(op, args))
	if err != nil {
		return zero, err
	}
	v, _ := out.(R)
	return v, nil
}

// RunStep executes one step standalone. Errors from prepare onward are
// recorded once on the interaction as ERROR and returned to the caller.
func (r *Runner) RunStep(ctx context.Context, appID string, s Step) (any, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("app_id", appID),
		attribute.String("method", s.Method()),
	))
	defer span.End()

	result, err := r.runStep(ctx, appID, s, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (r *Runner) runStep(ctx context.Context, appID string, s Step, span trace.Span) (any, error) {
	method := s.Method()

	var cached any
	var hit bool
	if err := r.phase(ctx, method, PhaseCheck, func() error {
		var err error
		cached, hit, err = s.check(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if hit {
		span.AddEvent("check short-circuit")
		return cached, nil
	}

	var h *interaction.Handle
	if err := r.phase(ctx, method, PhaseInteraction, func() error {
		var err error
		h, err = r.begin(ctx, appID, s)
		return err
	}); err != nil {
		return nil, err
	}

	result, err := r.finish(ctx, appID, s, h)
	if err != nil {
		h.Fail(ctx, err)
		return nil, err
	}
	return result, nil
}

// finish runs prepare, authorization and execute for one step.
func (r *Runner) finish(ctx context.Context, appID string, s Step, h *interaction.Handle) (any, error) {
	method := s.Method()

	if err := r.phase(ctx, method, PhasePrepare, func() error { return s.prepare(ctx) }); err != nil {
		return nil, err
	}

	if err := r.phase(ctx, method, PhaseAuthorize, func() error {
		item, err := s.item(r.ids.NewID())
		if err != nil {
			return err
		}
		if _, err := h.Update(ctx, interaction.Update{Status: interaction.StatusAuthorizing}); err != nil {
			return err
		}
		resp, err := r.authorizer.RequestAuthorization(ctx, appID, []authz.Item{item})
		if err != nil {
			return err
		}
		return s.authorized(resp.ItemResponses[item.ID])
	}); err != nil {
		return nil, err
	}

	return r.execute(ctx, s, h)
}

func (r *Runner) execute(ctx context.Context, s Step, h *interaction.Handle) (any, error) {
	var result any
	err := r.phase(ctx, s.Method(), PhaseExecute, func() error {
		if _, err := h.Update(ctx, interaction.Update{Status: interaction.StatusExecuting}); err != nil {
			return err
		}
		var err error
		result, err = s.execute(ctx, h)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !h.Snapshot().Complete {
		if _, err := h.Update(ctx, interaction.Update{Status: interaction.StatusSuccess, Complete: true}); err != nil {
			r.logger.Warn("failed to record interaction success", "interaction_id", h.ID(), "error", err)
		}
	}
	return result, nil
}

func (r *Runner) begin(ctx context.Context, appID string, s Step) (*interaction.Handle, error) {
	start := s.start()
	start.AppID = appID
	if start.Type == "" {
		start.Type = s.Method()
	}
	return r.tracker.Begin(ctx, start)
}

// phase times fn and logs and counts its failure.
func (r *Runner) phase(ctx context.Context, method, name string, fn func() error) error {
	began := time.Now()
	err := fn()
	r.metrics.PhaseDone(ctx, method, name, time.Since(began))
	if err != nil {
		r.metrics.PhaseFailed(ctx, method, name)
		r.logger.Warn("operation phase failed", "method", method, "phase", name, "error", err)
		return fmt.Errorf("%s %s: %w", method, name, err)
	}
	return nil
}

// Result is one entry of a batch result, in submission order.
type Result struct {
	Method string
	Value  any
	// Err is set when the action failed before authorization. Such
	// failures do not affect the rest of the batch.
	Err error
	// Cached is true when check answered without running later phases.
	Cached bool
}

type batchEntry struct {
	step   Step
	handle *interaction.Handle
	itemID string
	result Result
	done   bool
}

// Batch runs steps as one atomic unit. Each phase is attempted for every
// step before the next phase starts, and all steps still pending at the
// authorization phase share a single prompt.
//
// A check error, a denial or any execute error fails the whole batch.
// createInteraction and prepare errors only fail their own entry.
func (r *Runner) Batch(ctx context.Context, appID string, steps []Step) ([]Result, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.Batch", trace.WithAttributes(
		attribute.String("app_id", appID),
		attribute.Int("steps", len(steps)),
	))
	defer span.End()

	results, err := r.batch(ctx, appID, steps)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return results, err
}

func (r *Runner) batch(ctx context.Context, appID string, steps []Step) ([]Result, error) {
	entries := make([]*batchEntry, len(steps))
	for i, s := range steps {
		entries[i] = &batchEntry{step: s, result: Result{Method: s.Method()}}
	}

	// Phase 0: check
	for i, e := range entries {
		var cached any
		var hit bool
		err := r.phase(ctx, e.step.Method(), PhaseCheck, func() error {
			var err error
			cached, hit, err = e.step.check(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		if hit {
			e.result.Value = cached
			e.result.Cached = true
			e.done = true
		}
	}

	// Phase 1: createInteraction
	for _, e := range entries {
		if e.done {
			continue
		}
		err := r.phase(ctx, e.step.Method(), PhaseInteraction, func() error {
			var err error
			e.handle, err = r.begin(ctx, appID, e.step)
			return err
		})
		if err != nil {
			e.result.Err = err
			e.done = true
		}
	}

	// Phase 2: prepare
	for _, e := range entries {
		if e.done {
			continue
		}
		if err := r.phase(ctx, e.step.Method(), PhasePrepare, func() error { return e.step.prepare(ctx) }); err != nil {
			e.handle.Fail(ctx, err)
			e.result.Err = err
			e.done = true
		}
	}

	// Phase 3: one combined authorization request
	var items []authz.Item
	var waiting []*batchEntry
	for _, e := range entries {
		if e.done {
			continue
		}
		e.itemID = r.ids.NewID()
		item, err := e.step.item(e.itemID)
		if err != nil {
			e.handle.Fail(ctx, err)
			e.result.Err = err
			e.done = true
			continue
		}
		items = append(items, item)
		waiting = append(waiting, e)
	}

	if len(waiting) > 0 {
		for _, e := range waiting {
			if _, err := e.handle.Update(ctx, interaction.Update{Status: interaction.StatusAuthorizing}); err != nil {
				r.logger.Warn("failed to record authorization status", "interaction_id", e.handle.ID(), "error", err)
			}
		}
		resp, err := r.authorizer.RequestAuthorization(ctx, appID, items)
		if err != nil {
			r.metrics.PhaseFailed(ctx, "batch", PhaseAuthorize)
			r.logger.Warn("batch authorization failed", "app_id", appID, "items", len(items), "error", err)
			for _, e := range waiting {
				e.handle.Fail(ctx, err)
			}
			return nil, fmt.Errorf("batch %s: %w", PhaseAuthorize, err)
		}
		for _, e := range waiting {
			if err := e.step.authorized(resp.ItemResponses[e.itemID]); err != nil {
				r.failRemaining(ctx, waiting, e, err)
				return nil, fmt.Errorf("batch %s %s: %w", e.step.Method(), PhaseAuthorize, err)
			}
		}
	}

	// Phase 4: execute in submission order
	for _, e := range waiting {
		v, err := r.execute(ctx, e.step, e.handle)
		if err != nil {
			r.failRemaining(ctx, waiting, e, err)
			return nil, fmt.Errorf("batch: %w", err)
		}
		e.result.Value = v
		e.done = true
	}

	out := make([]Result, len(entries))
	for i, e := range entries {
		out[i] = e.result
	}
	return out, nil
}

// failRemaining records failed on the failing entry and aborted on every
// later entry that never executed.
func (r *Runner) failRemaining(ctx context.Context, waiting []*batchEntry, failed *batchEntry, cause error) {
	failed.handle.Fail(ctx, cause)
	after := false
	for _, e := range waiting {
		if e == failed {
			after = true
			continue
		}
		if after && !e.done {
			e.handle.Fail(ctx, fmt.Errorf("%w: %s failed: %v", ErrBatchAborted, failed.step.Method(), cause))
		}
	}
}
