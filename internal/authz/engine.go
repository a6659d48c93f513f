// ABOUTME: Authorization Engine: auto-approves from stored grants, otherwise prompts the UI once
// ABOUTME: Strict apps are rejected without a prompt; approvals are persisted under their storage keys

package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/dedupe"
	"github.com/2389/wallet-gateway/internal/events"
	"github.com/2389/wallet-gateway/internal/pending"
	"github.com/2389/wallet-gateway/internal/store"
	"github.com/2389/wallet-gateway/internal/telemetry"
)

// DefaultAlwaysAllowed are methods strict mode still prompts for. They are
// how an app negotiates capabilities in the first place.
var DefaultAlwaysAllowed = []string{"requestCapabilities"}

// DecisionRecorder receives the audit trail of settled requests.
type DecisionRecorder interface {
	AppendDecision(ctx context.Context, rec *store.DecisionRecord) error
}

// ResolveResult reports what Resolve did with a response.
type ResolveResult string

const (
	// Delivered means a waiting request received the response.
	Delivered ResolveResult = "delivered"
	// Duplicate means the request was already answered.
	Duplicate ResolveResult = "duplicate"
	// Stale means the request expired or was cancelled before the answer.
	Stale ResolveResult = "stale"
	// Unknown means no such request was ever seen (or it aged out).
	Unknown ResolveResult = "unknown"
)

// Options configures an Engine.
type Options struct {
	Capabilities  *capability.Store
	Requests      *events.Broadcaster[Request]
	Recorder      DecisionRecorder
	Metrics       *telemetry.Metrics
	Clock         clock.Clock
	IDs           clock.Generator
	Timeout       time.Duration
	MaxPending    int
	ResolvedTTL   time.Duration
	AlwaysAllowed []string
	Logger        *slog.Logger
}

// Engine decides authorization items. It is safe for concurrent use.
type Engine struct {
	caps          *capability.Store
	requests      *events.Broadcaster[Request]
	recorder      DecisionRecorder
	metrics       *telemetry.Metrics
	clock         clock.Clock
	ids           clock.Generator
	pending       *pending.Registry[Request, Response]
	settled       *dedupe.Cache
	alwaysAllowed map[string]bool
	tracer        trace.Tracer
	logger        *slog.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.IDs == nil {
		opts.IDs = clock.UUIDGenerator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.MustMetrics()
	}
	if opts.ResolvedTTL <= 0 {
		opts.ResolvedTTL = 10 * time.Minute
	}
	if opts.AlwaysAllowed == nil {
		opts.AlwaysAllowed = DefaultAlwaysAllowed
	}
	logger := opts.Logger.With("component", "authz")

	allowed := make(map[string]bool, len(opts.AlwaysAllowed))
	for _, m := range opts.AlwaysAllowed {
		allowed[m] = true
	}

	return &Engine{
		caps:     opts.Capabilities,
		requests: opts.Requests,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		ids:      opts.IDs,
		pending: pending.New[Request, Response](pending.Options{
			MaxPending: opts.MaxPending,
			Timeout:    opts.Timeout,
			Clock:      opts.Clock,
			Logger:     opts.Logger,
		}),
		settled:       dedupe.New(opts.ResolvedTTL, 4096, opts.Clock),
		alwaysAllowed: allowed,
		tracer:        otel.Tracer(telemetry.InstrumentationName),
		logger:        logger,
	}
}

// RequestAuthorization decides every item. Items whose storage keys all
// resolve from stored approvals are approved without a prompt. The rest go
// to the UI as one Request. A denial of the request, or of any single item,
// fails the whole call with ErrDenied.
func (e *Engine) RequestAuthorization(ctx context.Context, appID string, items []Item) (Response, error) {
	ctx, span := e.tracer.Start(ctx, "authz.RequestAuthorization", trace.WithAttributes(
		attribute.String("app_id", appID),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	resp, err := e.requestAuthorization(ctx, appID, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (e *Engine) requestAuthorization(ctx context.Context, appID string, items []Item) (Response, error) {
	if err := capability.ValidateAppID(appID); err != nil {
		return Response{}, err
	}

	responses := make(map[string]ItemResponse, len(items))
	var needs []Item
	for _, item := range items {
		item.AppID = appID
		data, ok, err := e.lookup(ctx, appID, item)
		if err != nil {
			return Response{}, err
		}
		if ok {
			responses[item.ID] = ItemResponse{ID: item.ID, Approved: true, AppID: appID, Data: data}
			continue
		}
		needs = append(needs, item)
	}

	if auto := len(items) - len(needs); auto > 0 {
		e.metrics.AutoApproved(ctx, appID, auto)
		e.logger.Debug("auto-approved items from stored grants", "app_id", appID, "count", auto)
	}

	if len(needs) == 0 {
		id := e.ids.NewID()
		e.record(ctx, id, appID, store.DecisionAutoApproved, items)
		return Response{ID: id, Approved: true, AppID: appID, ItemResponses: responses}, nil
	}

	behavior, err := e.caps.Behavior(ctx, appID)
	if err != nil {
		return Response{}, fmt.Errorf("loading behavior: %w", err)
	}
	if behavior.Mode == capability.ModeStrict {
		var blocked []string
		for _, item := range needs {
			if !e.alwaysAllowed[item.Method] {
				blocked = append(blocked, item.Method)
			}
		}
		if len(blocked) > 0 {
			e.metrics.StrictRejected(ctx, appID)
			e.record(ctx, e.ids.NewID(), appID, store.DecisionStrict, needs)
			e.logger.Warn("strict mode rejected request", "app_id", appID, "methods", blocked)
			return Response{}, &StrictModeError{AppID: appID, Methods: blocked}
		}
	}

	req := Request{
		ID:        e.ids.NewID(),
		AppID:     appID,
		Items:     needs,
		Timestamp: e.clock.Now(),
	}
	answer, err := e.prompt(ctx, req)
	if err != nil {
		return Response{}, err
	}

	if !answer.Approved {
		e.record(ctx, req.ID, appID, store.DecisionDenied, needs)
		return Response{}, fmt.Errorf("%w: request %s", ErrDenied, req.ID)
	}
	for _, item := range needs {
		ir, ok := answer.ItemResponses[item.ID]
		if ok && !ir.Approved {
			e.record(ctx, req.ID, appID, store.DecisionDenied, needs)
			return Response{}, fmt.Errorf("%w: item %s (%s) of request %s", ErrDenied, item.ID, item.Method, req.ID)
		}
	}
	e.record(ctx, req.ID, appID, store.DecisionApproved, needs)

	for _, item := range needs {
		ir := answer.ItemResponses[item.ID]
		ir.ID = item.ID
		ir.AppID = appID
		ir.Approved = true
		if err := e.persist(ctx, appID, item, ir.Data); err != nil {
			return Response{}, err
		}
		responses[item.ID] = ir
	}

	return Response{ID: req.ID, Approved: true, AppID: appID, ItemResponses: responses}, nil
}

// lookup resolves an item from stored approvals. Every declared key must
// match (exactly or by wildcard); the first key's payload is returned.
func (e *Engine) lookup(ctx context.Context, appID string, item Item) (json.RawMessage, bool, error) {
	if item.Persistence == nil || len(item.Persistence.StorageKeys) == 0 {
		return nil, false, nil
	}
	var first json.RawMessage
	for i, key := range item.Persistence.StorageKeys {
		payload, matched, ok, err := e.caps.Lookup(ctx, appID, key)
		if err != nil {
			return nil, false, fmt.Errorf("looking up %s: %w", key, err)
		}
		if !ok {
			return nil, false, nil
		}
		if i == 0 {
			first = payload
		}
		if matched != key {
			e.logger.Debug("approval matched by wildcard", "app_id", appID, "key", key, "matched", matched)
		}
	}
	return first, true, nil
}

// prompt publishes req and waits for the UI's answer.
func (e *Engine) prompt(ctx context.Context, req Request) (Response, error) {
	ticket, err := e.pending.Register(req.ID, req)
	if err != nil {
		return Response{}, fmt.Errorf("registering authorization request: %w", err)
	}

	delivered := 0
	if e.requests != nil {
		delivered = e.requests.Publish(req.AppID, req)
	}
	e.metrics.Prompted(ctx, req.AppID, len(req.Items))
	e.logger.Info("authorization request published",
		"request_id", req.ID,
		"app_id", req.AppID,
		"items", len(req.Items),
		"watchers", delivered,
	)

	answer, err := ticket.Wait(ctx)
	if err != nil {
		e.settled.Record(req.ID, dedupe.Expired)
		if errors.Is(err, pending.ErrTimeout) {
			e.record(ctx, req.ID, req.AppID, store.DecisionTimeout, req.Items)
			return Response{}, fmt.Errorf("%w: request %s", ErrTimeout, req.ID)
		}
		if errors.Is(err, pending.ErrCancelled) {
			e.record(ctx, req.ID, req.AppID, store.DecisionDenied, req.Items)
			return Response{}, fmt.Errorf("%w: request %s was cancelled", ErrDenied, req.ID)
		}
		return Response{}, fmt.Errorf("waiting for authorization %s: %w", req.ID, err)
	}
	return answer, nil
}

// persist stores an approved item's payload under every declared key.
func (e *Engine) persist(ctx context.Context, appID string, item Item, uiData json.RawMessage) error {
	if item.Persistence == nil {
		return nil
	}
	payload := item.Persistence.PersistData
	if len(payload) == 0 {
		payload = uiData
	}
	for _, key := range item.Persistence.StorageKeys {
		if err := e.caps.Save(ctx, appID, key, payload); err != nil {
			return fmt.Errorf("persisting approval for %s: %w", item.Method, err)
		}
	}
	return nil
}

// Resolve delivers the UI's answer to the waiting request. Responses with
// no pending request are logged and otherwise ignored.
func (e *Engine) Resolve(resp Response) ResolveResult {
	if e.pending.Resolve(resp.ID, resp) {
		e.settled.Record(resp.ID, dedupe.Resolved)
		e.logger.Debug("authorization resolved", "request_id", resp.ID, "approved", resp.Approved)
		return Delivered
	}

	result := Unknown
	if outcome, ok := e.settled.Lookup(resp.ID); ok {
		result = Stale
		if outcome == dedupe.Resolved {
			result = Duplicate
		}
	}
	e.logger.Warn("ignoring authorization response with no pending request",
		"request_id", resp.ID,
		"app_id", resp.AppID,
		"reason", result,
	)
	return result
}

// Cancel abandons a pending request; its waiter fails with ErrDenied.
func (e *Engine) Cancel(requestID string) bool {
	return e.pending.Cancel(requestID)
}

// Pending returns requests awaiting a decision, oldest first.
func (e *Engine) Pending() []Request {
	return e.pending.Pending()
}

func (e *Engine) record(ctx context.Context, requestID, appID string, outcome store.DecisionOutcome, items []Item) {
	e.metrics.Decided(ctx, appID, string(outcome))
	if e.recorder == nil {
		return
	}
	methods := make([]string, len(items))
	for i, item := range items {
		methods[i] = item.Method
	}
	rec := &store.DecisionRecord{
		ID:        e.ids.NewID(),
		RequestID: requestID,
		AppID:     appID,
		Outcome:   outcome,
		Methods:   methods,
		Timestamp: e.clock.Now(),
	}
	// The audit trail must not fail the caller's action.
	if err := e.recorder.AppendDecision(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Warn("failed to record decision", "request_id", requestID, "error", err)
	}
}
