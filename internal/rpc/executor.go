// ABOUTME: wallet.Executor backed by a remote execution service over gRPC
// ABOUTME: Speaks the same structpb/JSON framing as the gateway; every reply is {"result": ...}

package rpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/2389/wallet-gateway/internal/wallet"
)

// ExecutorServiceName is the gRPC service the execution node must expose.
const ExecutorServiceName = "wallet.v1.Executor"

// RemoteExecutor forwards every wallet.Executor call to an execution node.
type RemoteExecutor struct {
	conn grpc.ClientConnInterface
}

var _ wallet.Executor = (*RemoteExecutor)(nil)

// NewRemoteExecutor wraps conn.
func NewRemoteExecutor(conn grpc.ClientConnInterface) *RemoteExecutor {
	return &RemoteExecutor{conn: conn}
}

func execute[T any](ctx context.Context, e *RemoteExecutor, method string, in any) (T, error) {
	var out struct {
		Result T `json:"result"`
	}
	if in == nil {
		in = struct{}{}
	}
	err := invoke(ctx, e.conn, "/"+ExecutorServiceName+"/"+method, in, &out)
	return out.Result, err
}

type addressArgs struct {
	Address string `json:"address"`
	Alias   string `json:"alias,omitempty"`
}

func (e *RemoteExecutor) AddressBook(ctx context.Context) ([]wallet.Contact, error) {
	return execute[[]wallet.Contact](ctx, e, "AddressBook", nil)
}

func (e *RemoteExecutor) ContractInstance(ctx context.Context, address string) (*wallet.ContractInstance, error) {
	return execute[*wallet.ContractInstance](ctx, e, "ContractInstance", addressArgs{Address: address})
}

func (e *RemoteExecutor) RegisterContract(ctx context.Context, reg wallet.ContractRegistration) (wallet.ContractInstance, error) {
	return execute[wallet.ContractInstance](ctx, e, "RegisterContract", reg)
}

func (e *RemoteExecutor) SenderRegistered(ctx context.Context, address string) (bool, error) {
	return execute[bool](ctx, e, "SenderRegistered", addressArgs{Address: address})
}

func (e *RemoteExecutor) RegisterSender(ctx context.Context, address, alias string) (string, error) {
	return execute[string](ctx, e, "RegisterSender", addressArgs{Address: address, Alias: alias})
}

func (e *RemoteExecutor) SimulateTx(ctx context.Context, tx wallet.TxRequest) (wallet.Simulation, error) {
	return execute[wallet.Simulation](ctx, e, "SimulateTx", tx)
}

func (e *RemoteExecutor) SimulateUtility(ctx context.Context, call wallet.UtilityCall) (json.RawMessage, error) {
	return execute[json.RawMessage](ctx, e, "SimulateUtility", call)
}

func (e *RemoteExecutor) ProveTx(ctx context.Context, tx wallet.TxRequest, sim wallet.Simulation) (wallet.ProvenTx, error) {
	return execute[wallet.ProvenTx](ctx, e, "ProveTx", struct {
		Tx         wallet.TxRequest  `json:"tx"`
		Simulation wallet.Simulation `json:"simulation"`
	}{tx, sim})
}

func (e *RemoteExecutor) SendTx(ctx context.Context, tx wallet.ProvenTx) (string, error) {
	return execute[string](ctx, e, "SendTx", tx)
}

func (e *RemoteExecutor) ExecutionTrace(ctx context.Context, tx wallet.TxRequest, cause error) (map[string]any, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return execute[map[string]any](ctx, e, "ExecutionTrace", struct {
		Tx    wallet.TxRequest `json:"tx"`
		Cause string           `json:"cause"`
	}{tx, msg})
}

func (e *RemoteExecutor) CreateAuthWit(ctx context.Context, from string, intent json.RawMessage) (json.RawMessage, error) {
	return execute[json.RawMessage](ctx, e, "CreateAuthWit", struct {
		From   string          `json:"from"`
		Intent json.RawMessage `json:"intent"`
	}{from, intent})
}

func (e *RemoteExecutor) PrivateEvents(ctx context.Context, q wallet.EventQuery) ([]json.RawMessage, error) {
	return execute[[]json.RawMessage](ctx, e, "PrivateEvents", q)
}

func (e *RemoteExecutor) ContractMetadata(ctx context.Context, address string) (json.RawMessage, error) {
	return execute[json.RawMessage](ctx, e, "ContractMetadata", addressArgs{Address: address})
}

func (e *RemoteExecutor) ContractClassMetadata(ctx context.Context, classID string) (json.RawMessage, error) {
	return execute[json.RawMessage](ctx, e, "ContractClassMetadata", struct {
		ClassID string `json:"classId"`
	}{classID})
}
