// ABOUTME: Registration operations for contracts and senders
// ABOUTME: Both short-circuit in check when the wallet already knows the address

package wallet

import (
	"context"
	"fmt"

	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/pipeline"
)

// MethodRegisterSender is the storage key method for sender registrations.
// No capability grants it.
const MethodRegisterSender = "registerSender"

type registerContractDisplay struct {
	Address string `json:"address"`
	ClassID string `json:"classId,omitempty"`
}

type registerContractOp struct {
	base
	keepExec[ContractRegistration]
}

func newRegisterContract(w *Wallet) pipeline.Operation[Input[ContractRegistration], registerContractDisplay, ContractRegistration, ContractInstance] {
	return registerContractOp{base: base{w: w, cmd: CommandRegisterContract}}
}

func (o registerContractOp) Check(ctx context.Context, in Input[ContractRegistration]) (ContractInstance, bool, error) {
	if in.Args.Address == "" {
		return ContractInstance{}, false, nil
	}
	inst, err := o.w.exec.ContractInstance(ctx, in.Args.Address)
	if err != nil {
		return ContractInstance{}, false, fmt.Errorf("looking up contract %s: %w", in.Args.Address, err)
	}
	if inst == nil {
		return ContractInstance{}, false, nil
	}
	return *inst, true, nil
}

func (registerContractOp) Interaction(in Input[ContractRegistration]) interaction.Start {
	return interaction.Start{Title: "Register contract", Description: in.Args.Address}
}

func (o registerContractOp) Prepare(_ context.Context, in Input[ContractRegistration]) (pipeline.Prepared[registerContractDisplay, ContractRegistration], error) {
	if err := o.validate(in.Raw); err != nil {
		return pipeline.Prepared[registerContractDisplay, ContractRegistration]{}, err
	}
	return pipeline.Prepared[registerContractDisplay, ContractRegistration]{
		Display:     registerContractDisplay{Address: in.Args.Address, ClassID: in.Args.ClassID},
		Exec:        in.Args,
		Persistence: keys(capability.Key(capability.MethodRegisterContract, in.Args.Address)),
	}, nil
}

func (o registerContractOp) Execute(ctx context.Context, reg ContractRegistration, _ *interaction.Handle) (ContractInstance, error) {
	inst, err := o.w.exec.RegisterContract(ctx, reg)
	if err != nil {
		return ContractInstance{}, &ExecutionError{Method: o.Method(), Stage: "registration", Err: err}
	}
	return inst, nil
}

type senderArgs struct {
	Address string `json:"address"`
	Alias   string `json:"alias,omitempty"`
}

type registerSenderOp struct {
	base
	keepExec[senderArgs]
}

func newRegisterSender(w *Wallet) pipeline.Operation[Input[senderArgs], senderArgs, senderArgs, string] {
	return registerSenderOp{base: base{w: w, cmd: CommandRegisterSender}}
}

func (o registerSenderOp) Check(ctx context.Context, in Input[senderArgs]) (string, bool, error) {
	if in.Args.Address == "" {
		return "", false, nil
	}
	known, err := o.w.exec.SenderRegistered(ctx, in.Args.Address)
	if err != nil {
		return "", false, fmt.Errorf("looking up sender %s: %w", in.Args.Address, err)
	}
	if known {
		return in.Args.Address, true, nil
	}
	return "", false, nil
}

func (registerSenderOp) Interaction(in Input[senderArgs]) interaction.Start {
	return interaction.Start{Title: "Register sender", Description: in.Args.Address}
}

func (o registerSenderOp) Prepare(_ context.Context, in Input[senderArgs]) (pipeline.Prepared[senderArgs, senderArgs], error) {
	if err := o.validate(in.Raw); err != nil {
		return pipeline.Prepared[senderArgs, senderArgs]{}, err
	}
	return pipeline.Prepared[senderArgs, senderArgs]{
		Display:     in.Args,
		Exec:        in.Args,
		Persistence: keys(capability.Key(MethodRegisterSender, in.Args.Address)),
	}, nil
}

func (o registerSenderOp) Execute(ctx context.Context, a senderArgs, _ *interaction.Handle) (string, error) {
	addr, err := o.w.exec.RegisterSender(ctx, a.Address, a.Alias)
	if err != nil {
		return "", &ExecutionError{Method: o.Method(), Stage: "registration", Err: err}
	}
	return addr, nil
}
