// ABOUTME: Read operations: accounts, address book, private events and contract metadata
// ABOUTME: Each is gated by a single storage key so one approval covers repeats

package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/pipeline"
)

func keys(k ...string) *authz.Persistence {
	return &authz.Persistence{StorageKeys: k}
}

// getAccounts returns the accounts the user chose to expose. The list
// comes only from the approval payload, and an empty list counts as no
// payload so a grant that exposes nothing never answers silently.
type getAccountsOp struct {
	base
	noCheck[Input[struct{}], []capability.Account]
}

func newGetAccounts(w *Wallet) pipeline.Operation[Input[struct{}], struct{}, []capability.Account, []capability.Account] {
	return getAccountsOp{base: base{w: w, cmd: CommandGetAccounts}}
}

func (getAccountsOp) Interaction(Input[struct{}]) interaction.Start {
	return interaction.Start{Title: "Get accounts"}
}

func (o getAccountsOp) Prepare(_ context.Context, in Input[struct{}]) (pipeline.Prepared[struct{}, []capability.Account], error) {
	if err := o.validate(in.Raw); err != nil {
		return pipeline.Prepared[struct{}, []capability.Account]{}, err
	}
	return pipeline.Prepared[struct{}, []capability.Account]{
		Persistence: keys(capability.MethodGetAccounts),
	}, nil
}

func (o getAccountsOp) Authorized(_ []capability.Account, resp authz.ItemResponse) ([]capability.Account, error) {
	var payload struct {
		Accounts []capability.Account `json:"accounts"`
	}
	if len(resp.Data) == 0 || json.Unmarshal(resp.Data, &payload) != nil || len(payload.Accounts) == 0 {
		return nil, pipeline.MissingPayload(o.Method(), "accounts")
	}
	return payload.Accounts, nil
}

func (getAccountsOp) Execute(_ context.Context, accounts []capability.Account, _ *interaction.Handle) ([]capability.Account, error) {
	return accounts, nil
}

type addressBookDisplay struct {
	Contacts []Contact `json:"contacts"`
}

// getAddressBook returns the contacts the user approved, or the whole book
// when the approval names none.
type getAddressBookOp struct {
	base
	noCheck[Input[struct{}], []Contact]
}

func newGetAddressBook(w *Wallet) pipeline.Operation[Input[struct{}], addressBookDisplay, []Contact, []Contact] {
	return getAddressBookOp{base: base{w: w, cmd: CommandGetAddressBook}}
}

func (getAddressBookOp) Interaction(Input[struct{}]) interaction.Start {
	return interaction.Start{Title: "Get address book"}
}

func (o getAddressBookOp) Prepare(ctx context.Context, in Input[struct{}]) (pipeline.Prepared[addressBookDisplay, []Contact], error) {
	var zero pipeline.Prepared[addressBookDisplay, []Contact]
	if err := o.validate(in.Raw); err != nil {
		return zero, err
	}
	book, err := o.w.exec.AddressBook(ctx)
	if err != nil {
		return zero, fmt.Errorf("reading address book: %w", err)
	}
	if book == nil {
		book = []Contact{}
	}
	return pipeline.Prepared[addressBookDisplay, []Contact]{
		Display:     addressBookDisplay{Contacts: book},
		Exec:        book,
		Persistence: keys(capability.MethodGetAddressBook),
	}, nil
}

func (getAddressBookOp) Authorized(book []Contact, resp authz.ItemResponse) ([]Contact, error) {
	var payload struct {
		Contacts *[]Contact `json:"contacts"`
	}
	if len(resp.Data) > 0 && json.Unmarshal(resp.Data, &payload) == nil && payload.Contacts != nil {
		return *payload.Contacts, nil
	}
	return book, nil
}

func (getAddressBookOp) Execute(_ context.Context, book []Contact, _ *interaction.Handle) ([]Contact, error) {
	return book, nil
}

type getPrivateEventsOp struct {
	base
	noCheck[Input[EventQuery], []json.RawMessage]
	keepExec[EventQuery]
}

func newGetPrivateEvents(w *Wallet) pipeline.Operation[Input[EventQuery], EventQuery, EventQuery, []json.RawMessage] {
	return getPrivateEventsOp{base: base{w: w, cmd: CommandGetPrivateEvents}}
}

func (getPrivateEventsOp) Interaction(in Input[EventQuery]) interaction.Start {
	return interaction.Start{
		Title:       "Read private events",
		Description: fmt.Sprintf("%s on %s", in.Args.Event, in.Args.Contract),
	}
}

func (o getPrivateEventsOp) Prepare(_ context.Context, in Input[EventQuery]) (pipeline.Prepared[EventQuery, EventQuery], error) {
	if err := o.validate(in.Raw); err != nil {
		return pipeline.Prepared[EventQuery, EventQuery]{}, err
	}
	q := in.Args
	if q.ToBlock != 0 && q.ToBlock < q.FromBlock {
		return pipeline.Prepared[EventQuery, EventQuery]{}, &ValidationError{
			Method: o.Method(), Field: "/toBlock", Reason: "must not be before fromBlock",
		}
	}
	return pipeline.Prepared[EventQuery, EventQuery]{
		Display:     q,
		Exec:        q,
		Persistence: keys(capability.Key(capability.MethodGetPrivateEvents, q.Contract)),
	}, nil
}

func (o getPrivateEventsOp) Execute(ctx context.Context, q EventQuery, _ *interaction.Handle) ([]json.RawMessage, error) {
	events, err := o.w.exec.PrivateEvents(ctx, q)
	if err != nil {
		return nil, &ExecutionError{Method: o.Method(), Stage: "query", Err: err}
	}
	return events, nil
}

type addressArgs struct {
	Address string `json:"address"`
}

type getContractMetadataOp struct {
	base
	noCheck[Input[addressArgs], json.RawMessage]
	keepExec[addressArgs]
}

func newGetContractMetadata(w *Wallet) pipeline.Operation[Input[addressArgs], addressArgs, addressArgs, json.RawMessage] {
	return getContractMetadataOp{base: base{w: w, cmd: CommandGetContractMetadata}}
}

func (getContractMetadataOp) Interaction(in Input[addressArgs]) interaction.Start {
	return interaction.Start{Title: "Read contract metadata", Description: in.Args.Address}
}

func (o getContractMetadataOp) Prepare(_ context.Context, in Input[addressArgs]) (pipeline.Prepared[addressArgs, addressArgs], error) {
	if err := o.validate(in.Raw); err != nil {
		return pipeline.Prepared[addressArgs, addressArgs]{}, err
	}
	return pipeline.Prepared[addressArgs, addressArgs]{
		Display:     in.Args,
		Exec:        in.Args,
		Persistence: keys(capability.Key(capability.MethodGetContractMetadata, in.Args.Address)),
	}, nil
}

func (o getContractMetadataOp) Execute(ctx context.Context, a addressArgs, _ *interaction.Handle) (json.RawMessage, error) {
	md, err := o.w.exec.ContractMetadata(ctx, a.Address)
	if err != nil {
		return nil, &ExecutionError{Method: o.Method(), Stage: "lookup", Err: err}
	}
	return md, nil
}

type classArgs struct {
	ClassID string `json:"classId"`
}

type getContractClassMetadataOp struct {
	base
	noCheck[Input[classArgs], json.RawMessage]
	keepExec[classArgs]
}

func newGetContractClassMetadata(w *Wallet) pipeline.Operation[Input[classArgs], classArgs, classArgs, json.RawMessage] {
	return getContractClassMetadataOp{base: base{w: w, cmd: CommandGetContractClassMetadata}}
}

func (getContractClassMetadataOp) Interaction(in Input[classArgs]) interaction.Start {
	return interaction.Start{Title: "Read contract class metadata", Description: in.Args.ClassID}
}

func (o getContractClassMetadataOp) Prepare(_ context.Context, in Input[classArgs]) (pipeline.Prepared[classArgs, classArgs], error) {
	if err := o.validate(in.Raw); err != nil {
		return pipeline.Prepared[classArgs, classArgs]{}, err
	}
	return pipeline.Prepared[classArgs, classArgs]{
		Display:     in.Args,
		Exec:        in.Args,
		Persistence: keys(capability.Key(capability.MethodGetContractClassMetadata, in.Args.ClassID)),
	}, nil
}

func (o getContractClassMetadataOp) Execute(ctx context.Context, a classArgs, _ *interaction.Handle) (json.RawMessage, error) {
	md, err := o.w.exec.ContractClassMetadata(ctx, a.ClassID)
	if err != nil {
		return nil, &ExecutionError{Method: o.Method(), Stage: "lookup", Err: err}
	}
	return md, nil
}
