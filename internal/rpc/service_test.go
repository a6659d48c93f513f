// ABOUTME: Contract tests for the wallet gateway service surface
// ABOUTME: Detects renamed or dropped methods and wire shape changes in the structpb codec

package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/wallet"
)

func TestServiceContract_Methods(t *testing.T) {
	assert.Equal(t, "wallet.v1.WalletGateway", ServiceDesc.ServiceName)

	var unary []string
	for _, m := range ServiceDesc.Methods {
		unary = append(unary, m.MethodName)
	}
	assert.ElementsMatch(t, []string{
		"Call", "Batch", "ResolveAuthorization", "CancelAuthorization", "ListPending",
		"ListInteractions", "InteractionHistory", "ListDecisions", "GetDiagnostic",
	}, unary)

	var streams []string
	for _, s := range ServiceDesc.Streams {
		assert.True(t, s.ServerStreams, s.StreamName)
		assert.False(t, s.ClientStreams, s.StreamName)
		streams = append(streams, s.StreamName)
	}
	assert.ElementsMatch(t, []string{
		"WatchAuthorizations", "WatchInteractions", "WatchDiagnostics",
	}, streams)

	assert.Equal(t, "/wallet.v1.WalletGateway/Call", FullMethod(MethodCall))
}

// TestServiceContract_CallRoundTrip verifies a call survives the structpb
// codec with its arguments intact.
func TestServiceContract_CallRoundTrip(t *testing.T) {
	original := wallet.Call{
		Method: "simulateTx",
		Args:   json.RawMessage(`{"calls":[{"to":"0xa","function":"swap","args":["1"]}]}`),
	}

	s, err := toStruct(original)
	require.NoError(t, err)

	var decoded wallet.Call
	require.NoError(t, fromStruct(s, &decoded))
	assert.Equal(t, "simulateTx", decoded.Method)
	assert.JSONEq(t, string(original.Args), string(decoded.Args))
}

// TestServiceContract_ResponseRoundTrip verifies item responses keep their
// keys and data through the codec.
func TestServiceContract_ResponseRoundTrip(t *testing.T) {
	original := authz.Response{
		ID:       "req-1",
		Approved: true,
		AppID:    "dapp",
		ItemResponses: map[string]authz.ItemResponse{
			"item-1": {ID: "item-1", Approved: true, AppID: "dapp", Data: json.RawMessage(`{"accounts":[{"alias":"a1","item":"0xAB"}]}`)},
		},
	}

	s, err := toStruct(original)
	require.NoError(t, err)

	var decoded authz.Response
	require.NoError(t, fromStruct(s, &decoded))
	assert.Equal(t, "req-1", decoded.ID)
	require.Contains(t, decoded.ItemResponses, "item-1")
	assert.True(t, decoded.ItemResponses["item-1"].Approved)
	assert.JSONEq(t, string(original.ItemResponses["item-1"].Data), string(decoded.ItemResponses["item-1"].Data))
}
