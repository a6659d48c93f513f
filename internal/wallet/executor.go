// ABOUTME: The execution collaborator that simulates, proves and submits on the wallet's behalf
// ABOUTME: Operations only call it from prepare (read-only) and execute (effectful)

package wallet

//go:generate mockgen -destination=mock_executor.go -package=wallet github.com/2389/wallet-gateway/internal/wallet Executor

import (
	"context"
	"encoding/json"
)

// Contact is an address book entry.
type Contact struct {
	Alias   string `json:"alias"`
	Address string `json:"address"`
}

// ContractInstance is a contract known to the wallet.
type ContractInstance struct {
	Address  string `json:"address"`
	ClassID  string `json:"classId"`
	Deployer string `json:"deployer,omitempty"`
}

// ContractRegistration describes a contract to register.
type ContractRegistration struct {
	Address  string          `json:"address"`
	ClassID  string          `json:"classId,omitempty"`
	Artifact json.RawMessage `json:"artifact,omitempty"`
}

// FunctionCall is one call inside a transaction.
type FunctionCall struct {
	To       string            `json:"to"`
	Function string            `json:"function"`
	Args     []json.RawMessage `json:"args,omitempty"`
}

// TxRequest is a transaction made of one or more calls.
type TxRequest struct {
	From  string          `json:"from,omitempty"`
	Calls []FunctionCall  `json:"calls"`
	Fee   json.RawMessage `json:"fee,omitempty"`
}

// Simulation is the outcome of simulating a transaction.
type Simulation struct {
	Return  json.RawMessage `json:"return,omitempty"`
	GasUsed uint64          `json:"gasUsed"`
}

// ProvenTx is a transaction with its proof, ready to send.
type ProvenTx struct {
	Hash  string `json:"hash"`
	Proof []byte `json:"proof,omitempty"`
}

// UtilityCall is a read-only contract function call.
type UtilityCall struct {
	Contract string            `json:"contract"`
	Function string            `json:"function"`
	Args     []json.RawMessage `json:"args,omitempty"`
}

// EventQuery selects private events.
type EventQuery struct {
	Contract   string   `json:"contract"`
	Event      string   `json:"event"`
	FromBlock  uint64   `json:"fromBlock,omitempty"`
	ToBlock    uint64   `json:"toBlock,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

// Executor performs the actual wallet work. It returns a domain result or
// an error and is otherwise opaque.
type Executor interface {
	AddressBook(ctx context.Context) ([]Contact, error)
	// ContractInstance returns nil when the contract is not registered.
	ContractInstance(ctx context.Context, address string) (*ContractInstance, error)
	RegisterContract(ctx context.Context, reg ContractRegistration) (ContractInstance, error)
	SenderRegistered(ctx context.Context, address string) (bool, error)
	RegisterSender(ctx context.Context, address, alias string) (string, error)
	SimulateTx(ctx context.Context, tx TxRequest) (Simulation, error)
	SimulateUtility(ctx context.Context, call UtilityCall) (json.RawMessage, error)
	ProveTx(ctx context.Context, tx TxRequest, sim Simulation) (ProvenTx, error)
	SendTx(ctx context.Context, tx ProvenTx) (string, error)
	// ExecutionTrace returns a structured trace of a failed proving run.
	ExecutionTrace(ctx context.Context, tx TxRequest, cause error) (map[string]any, error)
	CreateAuthWit(ctx context.Context, from string, intent json.RawMessage) (json.RawMessage, error)
	PrivateEvents(ctx context.Context, q EventQuery) ([]json.RawMessage, error)
	ContractMetadata(ctx context.Context, address string) (json.RawMessage, error)
	ContractClassMetadata(ctx context.Context, classID string) (json.RawMessage, error)
}
