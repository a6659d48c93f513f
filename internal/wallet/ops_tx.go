// ABOUTME: Transaction operations: simulate, simulate utility, send, and authorization witnesses
// ABOUTME: Sending reports PROVING and SENDING progress and exports diagnostics when proving fails

package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/diag"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/pipeline"
)

// callKeys returns one storage key per call, in call order, without duplicates.
func callKeys(method string, calls []FunctionCall) []string {
	out := make([]string, 0, len(calls))
	seen := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		k := capability.Key(method, c.To, c.Function)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func describeCalls(calls []FunctionCall) string {
	switch len(calls) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s on %s", calls[0].Function, calls[0].To)
	default:
		return fmt.Sprintf("%d calls starting with %s on %s", len(calls), calls[0].Function, calls[0].To)
	}
}

type txDisplay struct {
	Calls      []FunctionCall `json:"calls"`
	Simulation Simulation     `json:"simulation"`
}

type simulateTxOp struct {
	base
	noCheck[Input[TxRequest], Simulation]
	keepExec[Simulation]
}

func newSimulateTx(w *Wallet) pipeline.Operation[Input[TxRequest], txDisplay, Simulation, Simulation] {
	return simulateTxOp{base: base{w: w, cmd: CommandSimulateTx}}
}

func (simulateTxOp) Interaction(in Input[TxRequest]) interaction.Start {
	return interaction.Start{Title: "Simulate transaction", Description: describeCalls(in.Args.Calls)}
}

func (o simulateTxOp) Prepare(ctx context.Context, in Input[TxRequest]) (pipeline.Prepared[txDisplay, Simulation], error) {
	var zero pipeline.Prepared[txDisplay, Simulation]
	if err := o.validate(in.Raw); err != nil {
		return zero, err
	}
	sim, err := o.w.exec.SimulateTx(ctx, in.Args)
	if err != nil {
		return zero, fmt.Errorf("simulating transaction: %w", err)
	}
	return pipeline.Prepared[txDisplay, Simulation]{
		Display:     txDisplay{Calls: in.Args.Calls, Simulation: sim},
		Exec:        sim,
		Persistence: keys(callKeys(capability.MethodSimulateTx, in.Args.Calls)...),
	}, nil
}

func (simulateTxOp) Execute(_ context.Context, sim Simulation, _ *interaction.Handle) (Simulation, error) {
	return sim, nil
}

type simulateUtilityOp struct {
	base
	noCheck[Input[UtilityCall], json.RawMessage]
	keepExec[UtilityCall]
}

func newSimulateUtility(w *Wallet) pipeline.Operation[Input[UtilityCall], UtilityCall, UtilityCall, json.RawMessage] {
	return simulateUtilityOp{base: base{w: w, cmd: CommandSimulateUtility}}
}

func (simulateUtilityOp) Interaction(in Input[UtilityCall]) interaction.Start {
	return interaction.Start{
		Title:       "Simulate utility call",
		Description: fmt.Sprintf("%s on %s", in.Args.Function, in.Args.Contract),
	}
}

func (o simulateUtilityOp) Prepare(_ context.Context, in Input[UtilityCall]) (pipeline.Prepared[UtilityCall, UtilityCall], error) {
	if err := o.validate(in.Raw); err != nil {
		return pipeline.Prepared[UtilityCall, UtilityCall]{}, err
	}
	return pipeline.Prepared[UtilityCall, UtilityCall]{
		Display:     in.Args,
		Exec:        in.Args,
		Persistence: keys(capability.Key(capability.MethodSimulateUtility, in.Args.Contract, in.Args.Function)),
	}, nil
}

func (o simulateUtilityOp) Execute(ctx context.Context, call UtilityCall, h *interaction.Handle) (json.RawMessage, error) {
	if _, err := h.Update(ctx, interaction.Update{Status: interaction.StatusSimulating}); err != nil {
		return nil, err
	}
	out, err := o.w.exec.SimulateUtility(ctx, call)
	if err != nil {
		return nil, &ExecutionError{Method: o.Method(), Stage: "simulation", Err: err}
	}
	return out, nil
}

type sendExec struct {
	Tx  TxRequest
	Sim Simulation
}

// SendResult is what sendTx returns.
type SendResult struct {
	TxHash string `json:"txHash"`
}

type sendTxOp struct {
	base
	noCheck[Input[TxRequest], SendResult]
	keepExec[sendExec]
}

func newSendTx(w *Wallet) pipeline.Operation[Input[TxRequest], txDisplay, sendExec, SendResult] {
	return sendTxOp{base: base{w: w, cmd: CommandSendTx}}
}

func (sendTxOp) Interaction(in Input[TxRequest]) interaction.Start {
	return interaction.Start{Title: "Send transaction", Description: describeCalls(in.Args.Calls)}
}

func (o sendTxOp) Prepare(ctx context.Context, in Input[TxRequest]) (pipeline.Prepared[txDisplay, sendExec], error) {
	var zero pipeline.Prepared[txDisplay, sendExec]
	if err := o.validate(in.Raw); err != nil {
		return zero, err
	}
	sim, err := o.w.exec.SimulateTx(ctx, in.Args)
	if err != nil {
		return zero, fmt.Errorf("simulating transaction: %w", err)
	}
	return pipeline.Prepared[txDisplay, sendExec]{
		Display:     txDisplay{Calls: in.Args.Calls, Simulation: sim},
		Exec:        sendExec{Tx: in.Args, Sim: sim},
		Persistence: keys(callKeys(capability.MethodSendTx, in.Args.Calls)...),
	}, nil
}

func (o sendTxOp) Execute(ctx context.Context, e sendExec, h *interaction.Handle) (SendResult, error) {
	if _, err := h.Update(ctx, interaction.Update{Status: interaction.StatusProving}); err != nil {
		return SendResult{}, err
	}
	proven, err := o.w.exec.ProveTx(ctx, e.Tx, e.Sim)
	if err != nil {
		return SendResult{}, &ExecutionError{
			Method:       o.Method(),
			Stage:        "proving",
			DiagnosticID: o.w.exportDiagnostics(ctx, o.Method(), h, e.Tx, err),
			Err:          err,
		}
	}

	if _, err := h.Update(ctx, interaction.Update{Status: interaction.StatusSending}); err != nil {
		return SendResult{}, err
	}
	hash, err := o.w.exec.SendTx(ctx, proven)
	if err != nil {
		return SendResult{}, &ExecutionError{Method: o.Method(), Stage: "sending", Err: err}
	}
	return SendResult{TxHash: hash}, nil
}

// exportDiagnostics captures an execution trace for a failed proving run.
// It returns the diagnostic id, or "" when nothing could be exported.
// Failures here are logged and never replace the original error.
func (w *Wallet) exportDiagnostics(ctx context.Context, method string, h *interaction.Handle, tx TxRequest, cause error) string {
	if w.diag == nil {
		return ""
	}
	snap := h.Snapshot()
	trace, err := w.exec.ExecutionTrace(ctx, tx, cause)
	if err != nil {
		w.logger.Warn("failed to capture execution trace", "app_id", snap.AppID, "method", method, "error", err)
		return ""
	}
	id, err := w.diag.Capture(ctx, diag.Bundle{
		AppID:         snap.AppID,
		Method:        method,
		InteractionID: snap.ID,
		Error:         cause.Error(),
		Trace:         trace,
	})
	if err != nil {
		w.logger.Warn("failed to export diagnostics", "app_id", snap.AppID, "method", method, "error", err)
		return ""
	}
	return id
}

type authWitArgs struct {
	From   string          `json:"from"`
	Intent json.RawMessage `json:"intent"`
}

type createAuthWitOp struct {
	base
	noCheck[Input[authWitArgs], json.RawMessage]
	keepExec[authWitArgs]
}

func newCreateAuthWit(w *Wallet) pipeline.Operation[Input[authWitArgs], authWitArgs, authWitArgs, json.RawMessage] {
	return createAuthWitOp{base: base{w: w, cmd: CommandCreateAuthWit}}
}

func (createAuthWitOp) Interaction(in Input[authWitArgs]) interaction.Start {
	return interaction.Start{Title: "Create authorization witness", Description: in.Args.From}
}

func (o createAuthWitOp) Prepare(_ context.Context, in Input[authWitArgs]) (pipeline.Prepared[authWitArgs, authWitArgs], error) {
	if err := o.validate(in.Raw); err != nil {
		return pipeline.Prepared[authWitArgs, authWitArgs]{}, err
	}
	return pipeline.Prepared[authWitArgs, authWitArgs]{
		Display:     in.Args,
		Exec:        in.Args,
		Persistence: keys(capability.MethodCreateAuthWit),
	}, nil
}

func (o createAuthWitOp) Execute(ctx context.Context, a authWitArgs, _ *interaction.Handle) (json.RawMessage, error) {
	wit, err := o.w.exec.CreateAuthWit(ctx, a.From, a.Intent)
	if err != nil {
		return nil, &ExecutionError{Method: o.Method(), Stage: "signing", Err: err}
	}
	return wit, nil
}
