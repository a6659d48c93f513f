package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/events"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/store"
)

// fakeAuthorizer approves or denies every request and records what it got.
type fakeAuthorizer struct {
	mu    sync.Mutex
	calls [][]authz.Item
	deny  bool
	data  json.RawMessage
}

func (f *fakeAuthorizer) RequestAuthorization(_ context.Context, appID string, items []authz.Item) (authz.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, items)
	if f.deny {
		return authz.Response{}, authz.ErrDenied
	}
	resp := authz.Response{ID: "req", Approved: true, AppID: appID, ItemResponses: map[string]authz.ItemResponse{}}
	for _, it := range items {
		resp.ItemResponses[it.ID] = authz.ItemResponse{ID: it.ID, Approved: true, AppID: appID, Data: f.data}
	}
	return resp, nil
}

func (f *fakeAuthorizer) prompts() [][]authz.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]authz.Item(nil), f.calls...)
}

type echoArgs struct {
	Value     string
	Cached    bool
	CheckErr  error
	PrepErr   error
	ExecErr   error
	NeedsData bool
}

type echoExec struct {
	Value string
	Data  json.RawMessage
}

type echoOperation = Operation[echoArgs, map[string]string, echoExec, string]

// echoOp echoes its argument from the execute phase.
type echoOp struct {
	executed *[]string
}

func echo(executed *[]string) echoOperation { return echoOp{executed: executed} }

func (echoOp) Method() string { return "echo" }

func (echoOp) Check(_ context.Context, a echoArgs) (string, bool, error) {
	if a.CheckErr != nil {
		return "", false, a.CheckErr
	}
	if a.Cached {
		return "cached:" + a.Value, true, nil
	}
	return "", false, nil
}

func (echoOp) Interaction(a echoArgs) interaction.Start {
	return interaction.Start{Title: "Echo " + a.Value}
}

func (echoOp) Prepare(_ context.Context, a echoArgs) (Prepared[map[string]string, echoExec], error) {
	if a.PrepErr != nil {
		return Prepared[map[string]string, echoExec]{}, a.PrepErr
	}
	return Prepared[map[string]string, echoExec]{
		Display:     map[string]string{"value": a.Value},
		Exec:        echoExec{Value: a.Value},
		Persistence: &authz.Persistence{StorageKeys: []string{"echo:" + a.Value}},
	}, nil
}

func (echoOp) Authorized(e echoExec, resp authz.ItemResponse) (echoExec, error) {
	e.Data = resp.Data
	return e, nil
}

func (o echoOp) Execute(_ context.Context, e echoExec, h *interaction.Handle) (string, error) {
	if o.executed != nil {
		*o.executed = append(*o.executed, e.Value)
	}
	if e.Value == "boom" {
		return "", errors.New("execution exploded")
	}
	return "echo:" + e.Value, nil
}

type harness struct {
	runner *Runner
	auth   *fakeAuthorizer
	kv     *store.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv := store.NewMemoryStore()
	bus := events.NewBroadcaster[interaction.Interaction]("interactions", nil)
	t.Cleanup(bus.Close)
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tracker := interaction.NewTracker(kv, bus, clk, clock.NewSequence("int"), nil)
	auth := &fakeAuthorizer{}
	r := NewRunner(Config{
		Authorizer: auth,
		Tracker:    tracker,
		IDs:        clock.NewSequence("item"),
	})
	return &harness{runner: r, auth: auth, kv: kv}
}

func (h *harness) latest(t *testing.T, appID string) []store.InteractionRecord {
	t.Helper()
	recs, err := h.kv.ListInteractions(context.Background(), appID, 0)
	require.NoError(t, err)
	out := make([]store.InteractionRecord, len(recs))
	for i, r := range recs {
		out[i] = *r
	}
	return out
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t)
	got, err := Run(context.Background(), h.runner, "app1", echo(nil), echoArgs{Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", got)

	prompts := h.auth.prompts()
	require.Len(t, prompts, 1)
	require.Len(t, prompts[0], 1)
	assert.Equal(t, "echo", prompts[0][0].Method)
	assert.JSONEq(t, `{"value":"hi"}`, string(prompts[0][0].Params))
	assert.Equal(t, []string{"echo:hi"}, prompts[0][0].Persistence.StorageKeys)

	recs := h.latest(t, "app1")
	require.Len(t, recs, 1)
	assert.Equal(t, string(interaction.StatusSuccess), recs[0].Status)
	assert.True(t, recs[0].Complete)
	assert.Equal(t, "echo", recs[0].Type)
}

func TestRun_CheckShortCircuits(t *testing.T) {
	h := newHarness(t)
	got, err := Run(context.Background(), h.runner, "app1", echo(nil), echoArgs{Value: "c", Cached: true})
	require.NoError(t, err)
	assert.Equal(t, "cached:c", got)

	assert.Empty(t, h.auth.prompts(), "no authorization request")
	assert.Empty(t, h.latest(t, "app1"), "no interaction created")
}

func TestRun_CheckErrorCreatesNothing(t *testing.T) {
	h := newHarness(t)
	_, err := Run(context.Background(), h.runner, "app1", echo(nil), echoArgs{CheckErr: errors.New("bad input")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input")
	assert.Empty(t, h.latest(t, "app1"))
}

func TestRun_PrepareErrorRecordedOnce(t *testing.T) {
	h := newHarness(t)
	_, err := Run(context.Background(), h.runner, "app1", echo(nil), echoArgs{Value: "x", PrepErr: errors.New("no such contract")})
	require.Error(t, err)

	recs := h.latest(t, "app1")
	require.Len(t, recs, 1)
	assert.Equal(t, string(interaction.StatusError), recs[0].Status)
	assert.True(t, recs[0].Complete)
	assert.Contains(t, recs[0].Description, "no such contract")

	history, err := h.kv.ListInteractionHistory(context.Background(), recs[0].ID)
	require.NoError(t, err)
	errorSnapshots := 0
	for _, s := range history {
		if s.Status == string(interaction.StatusError) {
			errorSnapshots++
		}
	}
	assert.Equal(t, 1, errorSnapshots)
	assert.Empty(t, h.auth.prompts())
}

func TestRun_DenialRecordsError(t *testing.T) {
	h := newHarness(t)
	h.auth.deny = true
	var executed []string
	_, err := Run(context.Background(), h.runner, "app1", echo(&executed), echoArgs{Value: "x"})
	require.ErrorIs(t, err, authz.ErrDenied)
	assert.Empty(t, executed)

	recs := h.latest(t, "app1")
	require.Len(t, recs, 1)
	assert.Equal(t, string(interaction.StatusError), recs[0].Status)
}

func TestRun_AuthorizedDataReachesExecute(t *testing.T) {
	h := newHarness(t)
	h.auth.data = json.RawMessage(`{"k":"v"}`)
	var op echoOperation = dataOp{}
	got, err := Run(context.Background(), h.runner, "app1", op, echoArgs{Value: "d"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, got)
}

func TestRun_MissingApprovalPayload(t *testing.T) {
	h := newHarness(t)
	var op echoOperation = dataOp{}
	_, err := Run(context.Background(), h.runner, "app1", op, echoArgs{Value: "d"})
	require.ErrorIs(t, err, ErrMissingApprovalPayload)

	recs := h.latest(t, "app1")
	require.Len(t, recs, 1)
	assert.Equal(t, string(interaction.StatusError), recs[0].Status)
}

// dataOp requires the approval to carry data.
type dataOp struct{ echoOp }

func (dataOp) Authorized(e echoExec, resp authz.ItemResponse) (echoExec, error) {
	if len(resp.Data) == 0 {
		return e, MissingPayload("echo", "data")
	}
	e.Data = resp.Data
	return e, nil
}

func (dataOp) Execute(_ context.Context, e echoExec, _ *interaction.Handle) (string, error) {
	return string(e.Data), nil
}

func TestBatch_SinglePromptInInputOrder(t *testing.T) {
	h := newHarness(t)
	op := echo(nil)
	results, err := h.runner.Batch(context.Background(), "app1", []Step{
		Bind(op, echoArgs{Value: "a"}),
		Bind(op, echoArgs{Value: "b"}),
		Bind(op, echoArgs{Value: "c"}),
	})
	require.NoError(t, err)

	prompts := h.auth.prompts()
	require.Len(t, prompts, 1, "one combined request")
	assert.Len(t, prompts[0], 3)

	require.Len(t, results, 3)
	for i, want := range []string{"echo:a", "echo:b", "echo:c"} {
		assert.Equal(t, want, results[i].Value)
		assert.NoError(t, results[i].Err)
	}
}

func TestBatch_CachedEntriesSkipAuthorization(t *testing.T) {
	h := newHarness(t)
	op := echo(nil)
	results, err := h.runner.Batch(context.Background(), "app1", []Step{
		Bind(op, echoArgs{Value: "a", Cached: true}),
		Bind(op, echoArgs{Value: "b"}),
	})
	require.NoError(t, err)

	prompts := h.auth.prompts()
	require.Len(t, prompts, 1)
	require.Len(t, prompts[0], 1)
	assert.JSONEq(t, `{"value":"b"}`, string(prompts[0][0].Params))

	assert.Equal(t, "cached:a", results[0].Value)
	assert.True(t, results[0].Cached)
	assert.Equal(t, "echo:b", results[1].Value)
}

func TestBatch_AllCachedNoPrompt(t *testing.T) {
	h := newHarness(t)
	results, err := h.runner.Batch(context.Background(), "app1", []Step{
		Bind(echo(nil), echoArgs{Value: "a", Cached: true}),
	})
	require.NoError(t, err)
	assert.Empty(t, h.auth.prompts())
	assert.Equal(t, "cached:a", results[0].Value)
}

func TestBatch_CheckErrorRejectsBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.runner.Batch(context.Background(), "app1", []Step{
		Bind(echo(nil), echoArgs{Value: "a"}),
		Bind(echo(nil), echoArgs{CheckErr: errors.New("malformed")}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch entry 1")
	assert.Empty(t, h.auth.prompts())
	assert.Empty(t, h.latest(t, "app1"))
}

func TestBatch_PrepareFailureIsolated(t *testing.T) {
	h := newHarness(t)
	results, err := h.runner.Batch(context.Background(), "app1", []Step{
		Bind(echo(nil), echoArgs{Value: "a"}),
		Bind(echo(nil), echoArgs{Value: "b", PrepErr: errors.New("simulation failed")}),
		Bind(echo(nil), echoArgs{Value: "c"}),
	})
	require.NoError(t, err)

	prompts := h.auth.prompts()
	require.Len(t, prompts, 1)
	assert.Len(t, prompts[0], 2)

	assert.Equal(t, "echo:a", results[0].Value)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "simulation failed")
	assert.Equal(t, "echo:c", results[2].Value)
}

func TestBatch_DenialFailsEverything(t *testing.T) {
	h := newHarness(t)
	h.auth.deny = true
	var executed []string
	op := echo(&executed)
	_, err := h.runner.Batch(context.Background(), "app1", []Step{
		Bind(op, echoArgs{Value: "a"}),
		Bind(op, echoArgs{Value: "b"}),
	})
	require.ErrorIs(t, err, authz.ErrDenied)
	assert.Empty(t, executed)

	for _, rec := range h.latest(t, "app1") {
		assert.Equal(t, string(interaction.StatusError), rec.Status)
	}
}

func TestBatch_ExecuteErrorAborts(t *testing.T) {
	h := newHarness(t)
	var executed []string
	op := echo(&executed)
	_, err := h.runner.Batch(context.Background(), "app1", []Step{
		Bind(op, echoArgs{Value: "a"}),
		Bind(op, echoArgs{Value: "boom"}),
		Bind(op, echoArgs{Value: "c"}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution exploded")
	assert.Equal(t, []string{"a", "boom"}, executed, "entries after the failure never run")

	statuses := map[string]string{}
	for _, rec := range h.latest(t, "app1") {
		statuses[rec.Title] = rec.Status
	}
	assert.Equal(t, string(interaction.StatusSuccess), statuses["Echo a"])
	assert.Equal(t, string(interaction.StatusError), statuses["Echo boom"])
	assert.Equal(t, string(interaction.StatusError), statuses["Echo c"])
}

// blockingAuthorizer never answers; it returns when the caller gives up.
type blockingAuthorizer struct{}

func (blockingAuthorizer) RequestAuthorization(ctx context.Context, _ string, _ []authz.Item) (authz.Response, error) {
	<-ctx.Done()
	return authz.Response{}, ctx.Err()
}

func newBlockingHarness(t *testing.T) (*Runner, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	tracker := interaction.NewTracker(st, nil, clock.Real(), clock.NewSequence("int"), nil)
	r := NewRunner(Config{
		Authorizer: blockingAuthorizer{},
		Tracker:    tracker,
		IDs:        clock.NewSequence("item"),
	})
	return r, st
}

func TestRun_DeadlineRecordsError(t *testing.T) {
	r, st := newBlockingHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, r, "app1", echo(nil), echoArgs{Value: "x"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	recs, err := st.ListInteractions(context.Background(), "app1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(interaction.StatusError), recs[0].Status)
	assert.True(t, recs[0].Complete)
	assert.Contains(t, recs[0].Description, "deadline exceeded")
}

func TestBatch_CancelRecordsErrorOnEveryEntry(t *testing.T) {
	r, st := newBlockingHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := r.Batch(ctx, "app1", []Step{
		Bind(echo(nil), echoArgs{Value: "a"}),
		Bind(echo(nil), echoArgs{Value: "b"}),
	})
	require.ErrorIs(t, err, context.Canceled)

	recs, err := st.ListInteractions(context.Background(), "app1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, string(interaction.StatusError), rec.Status)
		assert.True(t, rec.Complete)
	}
}
