// ABOUTME: Wallet is the app-facing entry point: it parses calls and runs them through the pipeline
// ABOUTME: Every command is bound to its operation by a static dispatch table

package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/diag"
	"github.com/2389/wallet-gateway/internal/pipeline"
)

// MaxBatchSize bounds the number of calls in one batch.
const MaxBatchSize = 64

// Call is one invocation as sent by an app.
type Call struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Input is what every operation receives: the raw arguments for schema
// validation and their decoded form.
type Input[T any] struct {
	Raw  json.RawMessage
	Args T
}

// Config wires a Wallet.
type Config struct {
	Runner       *pipeline.Runner
	Executor     Executor
	Capabilities *capability.Store
	// Diagnostics may be nil, in which case proving failures are not exported.
	Diagnostics *diag.Exporter
	Logger      *slog.Logger
}

// Wallet runs wallet commands on behalf of apps.
type Wallet struct {
	runner  *pipeline.Runner
	exec    Executor
	caps    *capability.Store
	diag    *diag.Exporter
	schemas schemas
	logger  *slog.Logger
}

// New creates a Wallet and compiles the argument schemas.
func New(cfg Config) (*Wallet, error) {
	if cfg.Runner == nil || cfg.Executor == nil || cfg.Capabilities == nil {
		return nil, fmt.Errorf("wallet: runner, executor and capabilities are required")
	}
	compiled, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Wallet{
		runner:  cfg.Runner,
		exec:    cfg.Executor,
		caps:    cfg.Capabilities,
		diag:    cfg.Diagnostics,
		schemas: compiled,
		logger:  cfg.Logger.With("component", "wallet"),
	}, nil
}

// Call runs a single command for appID.
func (w *Wallet) Call(ctx context.Context, appID string, c Call) (any, error) {
	if err := capability.ValidateAppID(appID); err != nil {
		return nil, err
	}
	step, err := w.step(c)
	if err != nil {
		return nil, err
	}
	return w.runner.RunStep(ctx, appID, step)
}

// Batch runs calls as one atomic unit with at most one authorization
// prompt. Results are in submission order.
func (w *Wallet) Batch(ctx context.Context, appID string, calls []Call) ([]pipeline.Result, error) {
	if err := capability.ValidateAppID(appID); err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return []pipeline.Result{}, nil
	}
	if len(calls) > MaxBatchSize {
		return nil, &ValidationError{Method: "batch", Reason: fmt.Sprintf("%d calls exceeds the limit of %d", len(calls), MaxBatchSize)}
	}
	steps := make([]pipeline.Step, len(calls))
	for i, c := range calls {
		s, err := w.step(c)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		steps[i] = s
	}
	w.logger.Debug("running batch", "app_id", appID, "calls", len(calls))
	return w.runner.Batch(ctx, appID, steps)
}

func (w *Wallet) step(c Call) (pipeline.Step, error) {
	cmd, err := ParseCommand(c.Method)
	if err != nil {
		return nil, err
	}
	return dispatch[cmd](w, c.Args)
}

// binder decodes raw arguments and binds them to a command's operation.
type binder func(w *Wallet, raw json.RawMessage) (pipeline.Step, error)

var dispatch = [commandCount]binder{
	CommandGetAccounts:              bind(CommandGetAccounts, newGetAccounts),
	CommandGetAddressBook:           bind(CommandGetAddressBook, newGetAddressBook),
	CommandRegisterContract:         bind(CommandRegisterContract, newRegisterContract),
	CommandRegisterSender:           bind(CommandRegisterSender, newRegisterSender),
	CommandSimulateTx:               bind(CommandSimulateTx, newSimulateTx),
	CommandSimulateUtility:          bind(CommandSimulateUtility, newSimulateUtility),
	CommandSendTx:                   bind(CommandSendTx, newSendTx),
	CommandCreateAuthWit:            bind(CommandCreateAuthWit, newCreateAuthWit),
	CommandGetPrivateEvents:         bind(CommandGetPrivateEvents, newGetPrivateEvents),
	CommandGetContractMetadata:      bind(CommandGetContractMetadata, newGetContractMetadata),
	CommandGetContractClassMetadata: bind(CommandGetContractClassMetadata, newGetContractClassMetadata),
	CommandRequestCapabilities:      bind(CommandRequestCapabilities, newRequestCapabilities),
}

func bind[T, D, E, R any](cmd Command, newOp func(*Wallet) pipeline.Operation[Input[T], D, E, R]) binder {
	return func(w *Wallet, raw json.RawMessage) (pipeline.Step, error) {
		in := Input[T]{Raw: raw}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &in.Args); err != nil {
				return nil, &ValidationError{Method: cmd.String(), Reason: err.Error()}
			}
		}
		return pipeline.Bind(newOp(w), in), nil
	}
}

// base carries what every operation shares.
type base struct {
	w   *Wallet
	cmd Command
}

func (b base) Method() string { return b.cmd.String() }

func (b base) validate(raw json.RawMessage) error {
	return b.w.schemas.validate(b.cmd, raw)
}

// noCheck is embedded by operations without a fast path.
type noCheck[A, R any] struct{}

func (noCheck[A, R]) Check(context.Context, A) (R, bool, error) {
	var zero R
	return zero, false, nil
}

// keepExec is embedded by operations that ignore approval data.
type keepExec[E any] struct{}

func (keepExec[E]) Authorized(exec E, _ authz.ItemResponse) (E, error) { return exec, nil }
