package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/diag"
	"github.com/2389/wallet-gateway/internal/events"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/pipeline"
	"github.com/2389/wallet-gateway/internal/store"
)

type harness struct {
	wallet   *Wallet
	exec     *MockExecutor
	caps     *capability.Store
	engine   *authz.Engine
	kv       *store.MemoryStore
	requests *events.Broadcaster[authz.Request]
	diags    *events.Broadcaster[diag.Export]

	mu   sync.Mutex
	seen []authz.Request
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	kv := store.NewMemoryStore()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	caps := capability.NewStore(kv, capability.Options{Clock: clk})

	requests := events.NewBroadcaster[authz.Request]("authorizations", nil)
	interactions := events.NewBroadcaster[interaction.Interaction]("interactions", nil)
	diags := events.NewBroadcaster[diag.Export]("diagnostics", nil)
	t.Cleanup(func() {
		requests.Close()
		interactions.Close()
		diags.Close()
	})

	engine := authz.New(authz.Options{
		Capabilities: caps,
		Requests:     requests,
		Recorder:     kv,
		Clock:        clk,
		IDs:          clock.NewSequence("req"),
		Timeout:      5 * time.Second,
	})
	runner := pipeline.NewRunner(pipeline.Config{
		Authorizer: engine,
		Tracker:    interaction.NewTracker(kv, interactions, clk, clock.NewSequence("int"), nil),
		IDs:        clock.NewSequence("item"),
	})
	exec := NewMockExecutor(ctrl)
	w, err := New(Config{
		Runner:       runner,
		Executor:     exec,
		Capabilities: caps,
		Diagnostics:  diag.NewExporter(diags, clk, clock.NewSequence("diag"), 0, nil),
	})
	require.NoError(t, err)

	return &harness{wallet: w, exec: exec, caps: caps, engine: engine, kv: kv, requests: requests, diags: diags}
}

// answer resolves every published authorization request with decide.
func (h *harness) answer(t *testing.T, decide func(authz.Request) authz.Response) {
	t.Helper()
	ch, _ := h.requests.Subscribe(t.Context(), events.AllTopics)
	go func() {
		for req := range ch {
			h.mu.Lock()
			h.seen = append(h.seen, req)
			h.mu.Unlock()
			h.engine.Resolve(decide(req))
		}
	}()
}

func (h *harness) prompts() []authz.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]authz.Request(nil), h.seen...)
}

func approveWith(data func(authz.Item) json.RawMessage) func(authz.Request) authz.Response {
	return func(req authz.Request) authz.Response {
		resp := authz.Response{ID: req.ID, Approved: true, AppID: req.AppID, ItemResponses: map[string]authz.ItemResponse{}}
		for _, it := range req.Items {
			var d json.RawMessage
			if data != nil {
				d = data(it)
			}
			resp.ItemResponses[it.ID] = authz.ItemResponse{ID: it.ID, Approved: true, AppID: req.AppID, Data: d}
		}
		return resp
	}
}

func call(method string, args string) Call {
	return Call{Method: method, Args: json.RawMessage(args)}
}

func TestCommand_ParseRoundTrip(t *testing.T) {
	for _, c := range Commands() {
		parsed, err := ParseCommand(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCommand("transferEverything")
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatch_EveryCommandBound(t *testing.T) {
	for _, c := range Commands() {
		assert.NotNil(t, dispatch[c], c.String())
		_, ok := argumentSchemas[c]
		assert.True(t, ok, "schema for %s", c)
	}
}

func TestGetAccounts_ReauthorizationIsSilent(t *testing.T) {
	h := newHarness(t)
	accounts := `{"accounts":[{"alias":"main","item":"0xAB"}]}`
	h.answer(t, approveWith(func(authz.Item) json.RawMessage { return json.RawMessage(accounts) }))
	ctx := context.Background()

	first, err := h.wallet.Call(ctx, "X", call("getAccounts", `{}`))
	require.NoError(t, err)
	second, err := h.wallet.Call(ctx, "X", call("getAccounts", `{}`))
	require.NoError(t, err)

	want := []capability.Account{{Alias: "main", Item: "0xAB"}}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
	assert.Len(t, h.prompts(), 1)
}

func TestGetAccounts_ApprovalWithoutPayload(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))

	_, err := h.wallet.Call(context.Background(), "X", call("getAccounts", `{}`))
	require.ErrorIs(t, err, pipeline.ErrMissingApprovalPayload)
}

func TestRegisterContract_AlreadyRegisteredShortCircuits(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))
	inst := &ContractInstance{Address: "0xC", ClassID: "class1"}
	h.exec.EXPECT().ContractInstance(gomock.Any(), "0xC").Return(inst, nil)

	got, err := h.wallet.Call(context.Background(), "X", call("registerContract", `{"address":"0xC"}`))
	require.NoError(t, err)
	assert.Equal(t, *inst, got)

	assert.Empty(t, h.prompts())
	recs, err := h.kv.ListInteractions(context.Background(), "X", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRegisterContract_NewContract(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))
	h.exec.EXPECT().ContractInstance(gomock.Any(), "0xC").Return(nil, nil)
	h.exec.EXPECT().RegisterContract(gomock.Any(), ContractRegistration{Address: "0xC", ClassID: "k"}).
		Return(ContractInstance{Address: "0xC", ClassID: "k"}, nil)

	got, err := h.wallet.Call(context.Background(), "X", call("registerContract", `{"address":"0xC","classId":"k"}`))
	require.NoError(t, err)
	assert.Equal(t, ContractInstance{Address: "0xC", ClassID: "k"}, got)

	prompts := h.prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, []string{"registerContract:0xC"}, prompts[0].Items[0].Persistence.StorageKeys)
	assert.JSONEq(t, `{"address":"0xC","classId":"k"}`, string(prompts[0].Items[0].Params))
}

func TestValidationErrorIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))
	h.exec.EXPECT().ContractInstance(gomock.Any(), "bad:addr").Return(nil, nil)

	_, err := h.wallet.Call(context.Background(), "X", call("registerContract", `{"address":"bad:addr"}`))
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "/address", verr.Field)

	recs, err := h.kv.ListInteractions(context.Background(), "X", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(interaction.StatusError), recs[0].Status)
	assert.Empty(t, h.prompts())
}

func TestMalformedJSONRejectedUpFront(t *testing.T) {
	h := newHarness(t)
	_, err := h.wallet.Call(context.Background(), "X", call("sendTx", `{"calls": "nope"}`))
	require.ErrorIs(t, err, ErrValidation)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	_, err := h.wallet.Call(context.Background(), "X", call("drainWallet", `{}`))
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestInvalidAppID(t *testing.T) {
	h := newHarness(t)
	_, err := h.wallet.Call(context.Background(), "bad:app", call("getAccounts", `{}`))
	require.ErrorIs(t, err, capability.ErrInvalidAppID)
}

func TestBatch_OnePromptForAllCalls(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))
	sim := Simulation{GasUsed: 21}
	h.exec.EXPECT().SimulateTx(gomock.Any(), gomock.Any()).Return(sim, nil).Times(2)
	h.exec.EXPECT().ProveTx(gomock.Any(), gomock.Any(), sim).Return(ProvenTx{Hash: "0xh"}, nil)
	h.exec.EXPECT().SendTx(gomock.Any(), ProvenTx{Hash: "0xh"}).Return("0xh", nil)
	h.exec.EXPECT().ContractMetadata(gomock.Any(), "0xA").Return(json.RawMessage(`{"name":"token"}`), nil)

	results, err := h.wallet.Batch(context.Background(), "X", []Call{
		call("simulateTx", `{"calls":[{"to":"0xA","function":"transfer"}]}`),
		call("sendTx", `{"calls":[{"to":"0xA","function":"transfer"}]}`),
		call("getContractMetadata", `{"address":"0xA"}`),
	})
	require.NoError(t, err)

	prompts := h.prompts()
	require.Len(t, prompts, 1)
	require.Len(t, prompts[0].Items, 3)
	assert.Equal(t, "simulateTx", prompts[0].Items[0].Method)
	assert.Equal(t, []string{"sendTx:0xA:transfer"}, prompts[0].Items[1].Persistence.StorageKeys)

	require.Len(t, results, 3)
	assert.Equal(t, sim, results[0].Value)
	assert.Equal(t, SendResult{TxHash: "0xh"}, results[1].Value)
	assert.JSONEq(t, `{"name":"token"}`, string(results[2].Value.(json.RawMessage)))
}

func TestBatch_MalformedEntryRejectsBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.wallet.Batch(context.Background(), "X", []Call{
		call("getAccounts", `{}`),
		call("nope", `{}`),
	})
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.Empty(t, h.prompts())
}

func TestBatch_TooLarge(t *testing.T) {
	h := newHarness(t)
	calls := make([]Call, MaxBatchSize+1)
	for i := range calls {
		calls[i] = call("getAccounts", `{}`)
	}
	_, err := h.wallet.Batch(context.Background(), "X", calls)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSendTx_ProvingFailureExportsDiagnostics(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))
	diagCh, _ := h.diags.Subscribe(t.Context(), "X")

	provingErr := errors.New("constraint 17 unsatisfied")
	h.exec.EXPECT().SimulateTx(gomock.Any(), gomock.Any()).Return(Simulation{}, nil)
	h.exec.EXPECT().ProveTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(ProvenTx{}, provingErr)
	h.exec.EXPECT().ExecutionTrace(gomock.Any(), gomock.Any(), provingErr).
		Return(map[string]any{"circuit": "transfer"}, nil)

	_, err := h.wallet.Call(context.Background(), "X", call("sendTx", `{"calls":[{"to":"0xA","function":"transfer"}]}`))
	require.ErrorIs(t, err, provingErr)
	var xerr *ExecutionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "proving", xerr.Stage)
	assert.Equal(t, "diag-1", xerr.DiagnosticID)

	exp := <-diagCh
	bundle, err := diag.Decode(exp.Data)
	require.NoError(t, err)
	assert.Equal(t, "sendTx", bundle.Method)
	assert.Equal(t, "transfer", bundle.Trace["circuit"])

	recs, err := h.kv.ListInteractions(context.Background(), "X", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	history, err := h.kv.ListInteractionHistory(context.Background(), recs[0].ID)
	require.NoError(t, err)
	var statuses []string
	for _, s := range history {
		statuses = append(statuses, s.Status)
	}
	assert.Equal(t, []string{
		string(interaction.StatusPreparing),
		string(interaction.StatusAuthorizing),
		string(interaction.StatusExecuting),
		string(interaction.StatusProving),
		string(interaction.StatusError),
	}, statuses)
}

func TestStrictModeRejectsWithoutPrompt(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))
	ctx := context.Background()
	require.NoError(t, h.caps.SetBehavior(ctx, "X", capability.Behavior{Mode: capability.ModeStrict}))
	h.exec.EXPECT().SimulateTx(gomock.Any(), gomock.Any()).Return(Simulation{}, nil)

	_, err := h.wallet.Call(ctx, "X", call("sendTx", `{"calls":[{"to":"0xA","function":"transfer"}]}`))
	require.ErrorIs(t, err, authz.ErrDenied)
	var strict *authz.StrictModeError
	require.ErrorAs(t, err, &strict)
	assert.Empty(t, h.prompts())
}

func TestRequestCapabilities_GrantThenReconstruct(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))
	ctx := context.Background()

	// A stale ad-hoc approval is replaced by the grant
	require.NoError(t, h.caps.Save(ctx, "X", "sendTx:*", nil))

	out, err := h.wallet.Call(ctx, "X", call("requestCapabilities",
		`{"capabilities":[{"type":"accounts","canGet":true,"accounts":[{"alias":"main","item":"0xAB"}]}],"mode":"strict"}`))
	require.NoError(t, err)
	grant := out.(CapabilityGrant)
	assert.Equal(t, []string{"getAccounts"}, grant.StorageKeys)
	assert.Equal(t, capability.ModeStrict, grant.Mode)

	keys, err := h.caps.Keys(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, []string{"getAccounts"}, keys)

	caps, err := h.caps.Reconstruct(ctx, "X")
	require.NoError(t, err)
	var expanded []string
	for _, c := range caps {
		expanded = append(expanded, capability.ToStorageKeys(c)...)
	}
	assert.Equal(t, []string{"getAccounts"}, expanded)

	// Strict, but getAccounts is granted so it is answered silently
	accounts, err := h.wallet.Call(ctx, "X", call("getAccounts", `{}`))
	require.NoError(t, err)
	assert.Equal(t, []capability.Account{{Alias: "main", Item: "0xAB"}}, accounts)
	assert.Len(t, h.prompts(), 1, "only the capability request prompted")
}

func TestGetAccounts_EmptyGrantIsMissingPayload(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))
	ctx := context.Background()

	_, err := h.wallet.Call(ctx, "X", call("requestCapabilities",
		`{"capabilities":[{"type":"accounts","canGet":true}]}`))
	require.NoError(t, err)

	stored, _, ok, err := h.caps.Lookup(ctx, "X", "getAccounts")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"accounts":[]}`, string(stored))

	_, err = h.wallet.Call(ctx, "X", call("getAccounts", `{}`))
	require.ErrorIs(t, err, pipeline.ErrMissingApprovalPayload)
	assert.Len(t, h.prompts(), 1, "answered from the grant without a prompt")
}

func TestRequestCapabilities_UserNarrowsGrant(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(func(authz.Item) json.RawMessage {
		return json.RawMessage(`{"capabilities":[{"type":"data","addressBook":true,"privateEvents":[]}]}`)
	}))

	out, err := h.wallet.Call(context.Background(), "X", call("requestCapabilities",
		`{"capabilities":[{"type":"data","addressBook":true,"privateEvents":"*"},{"type":"transaction","scope":"*"}]}`))
	require.NoError(t, err)
	grant := out.(CapabilityGrant)
	assert.Equal(t, []string{"getAddressBook"}, grant.StorageKeys)
	assert.Equal(t, capability.ModePermissive, grant.Mode)

	prompts := h.prompts()
	require.Len(t, prompts, 1)
	var display struct {
		StorageKeys []string `json:"storageKeys"`
	}
	require.NoError(t, json.Unmarshal(prompts[0].Items[0].Params, &display))
	assert.Equal(t, []string{"getAddressBook", "getPrivateEvents:*", "sendTx:*"}, display.StorageKeys)
}

func TestGetAddressBook_ApprovedSubset(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(func(authz.Item) json.RawMessage {
		return json.RawMessage(`{"contacts":[{"alias":"bob","address":"0xB"}]}`)
	}))
	h.exec.EXPECT().AddressBook(gomock.Any()).Return([]Contact{
		{Alias: "bob", Address: "0xB"},
		{Alias: "eve", Address: "0xE"},
	}, nil)

	out, err := h.wallet.Call(context.Background(), "X", call("getAddressBook", `{}`))
	require.NoError(t, err)
	assert.Equal(t, []Contact{{Alias: "bob", Address: "0xB"}}, out)
}

func TestWildcardGrantCoversSpecificCall(t *testing.T) {
	h := newHarness(t)
	h.answer(t, approveWith(nil))
	ctx := context.Background()
	require.NoError(t, h.caps.Save(ctx, "X", "simulateUtility:*", nil))
	h.exec.EXPECT().SimulateUtility(gomock.Any(), UtilityCall{Contract: "0xA", Function: "balance_of"}).
		Return(json.RawMessage(`42`), nil)

	out, err := h.wallet.Call(ctx, "X", call("simulateUtility", `{"contract":"0xA","function":"balance_of"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `42`, string(out.(json.RawMessage)))
	assert.Empty(t, h.prompts())
}
