package capability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToStorageKeys(t *testing.T) {
	tests := []struct {
		name string
		cap  Capability
		want []string
	}{
		{
			name: "accounts get only",
			cap:  Accounts{CanGet: true},
			want: []string{"getAccounts"},
		},
		{
			name: "accounts both",
			cap:  Accounts{CanGet: true, CanCreateAuthWit: true},
			want: []string{"getAccounts", "createAuthWit"},
		},
		{
			name: "contracts explicit",
			cap:  Contracts{Contracts: ListScope("0xa", "0xb"), CanRegister: true, CanGetMetadata: true},
			want: []string{
				"registerContract:0xa", "getContractMetadata:0xa",
				"registerContract:0xb", "getContractMetadata:0xb",
			},
		},
		{
			name: "contracts wildcard metadata",
			cap:  Contracts{Contracts: AnyScope(), CanGetMetadata: true},
			want: []string{"getContractMetadata:*"},
		},
		{
			name: "contract classes",
			cap:  ContractClasses{Classes: ListScope("0xc1"), CanGetMetadata: true},
			want: []string{"getContractClassMetadata:0xc1"},
		},
		{
			name: "simulation patterns",
			cap: Simulation{
				Transactions: PatternScope{Patterns: []FunctionPattern{{Contract: "0xa", Function: "swap"}}},
				Utilities:    PatternScope{All: true},
			},
			want: []string{"simulateTx:0xa:swap", "simulateUtility:*"},
		},
		{
			name: "transaction wildcard",
			cap:  Transaction{Scope: PatternScope{All: true}},
			want: []string{"sendTx:*"},
		},
		{
			name: "transaction contract wildcard function",
			cap:  Transaction{Scope: PatternScope{Patterns: []FunctionPattern{{Contract: "0xa", Function: "*"}}}},
			want: []string{"sendTx:0xa:*"},
		},
		{
			name: "transaction function on any contract",
			cap:  Transaction{Scope: PatternScope{Patterns: []FunctionPattern{{Contract: "*", Function: "transfer"}}}},
			want: []string{"sendTx:*:transfer"},
		},
		{
			name: "transaction pattern wildcard on both segments",
			cap:  Transaction{Scope: PatternScope{Patterns: []FunctionPattern{{Contract: "*", Function: "*"}}}},
			want: []string{"sendTx:*"},
		},
		{
			name: "data",
			cap:  Data{AddressBook: true, PrivateEvents: ListScope("0xa")},
			want: []string{"getAddressBook", "getPrivateEvents:0xa"},
		},
		{
			name: "empty scope produces nothing",
			cap:  Contracts{CanRegister: true},
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToStorageKeys(tt.cap))
		})
	}
}

func TestToEntries_AccountsPayload(t *testing.T) {
	entries := ToEntries(Accounts{CanGet: true, Accounts: []Account{{Alias: "a1", Item: "0xAB"}}})
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"accounts":[{"alias":"a1","item":"0xAB"}]}`, string(entries[0].Payload))

	entries = ToEntries(Data{AddressBook: true})
	require.Len(t, entries, 1)
	assert.JSONEq(t, `true`, string(entries[0].Payload))
}

func TestReconstruct_AccountsRoundTrip(t *testing.T) {
	caps := Reconstruct([]string{"getAccounts"})
	require.Len(t, caps, 1)
	assert.Equal(t, Accounts{CanGet: true}, caps[0])
}

func TestReconstruct_GroupsContractsByFlags(t *testing.T) {
	keys := []string{
		"registerContract:0xa",
		"getContractMetadata:0xa",
		"registerContract:0xb",
		"getContractMetadata:*",
	}
	caps := Reconstruct(keys)
	assert.Equal(t, []Capability{
		Contracts{Contracts: ListScope("0xa"), CanRegister: true, CanGetMetadata: true},
		Contracts{Contracts: ListScope("0xb"), CanRegister: true},
		Contracts{Contracts: AnyScope(), CanGetMetadata: true},
	}, caps)
}

func TestReconstruct_IgnoresUnknownKeys(t *testing.T) {
	caps := Reconstruct([]string{"registerSender:0xa", "somethingElse"})
	assert.Empty(t, caps)
}

func TestReconstruct_IsLossy(t *testing.T) {
	// An ad-hoc sendTx approval and a one-pattern transaction grant collapse
	// onto the same capability.
	adHoc := Reconstruct([]string{"sendTx:0xa:transfer"})
	granted := Reconstruct(ToStorageKeys(Transaction{Scope: PatternScope{
		Patterns: []FunctionPattern{{Contract: "0xa", Function: "transfer"}},
	}}))
	assert.Equal(t, adHoc, granted)
}

func TestCapabilityJSON(t *testing.T) {
	input := `[
		{"type":"accounts","canGet":true,"canCreateAuthWit":false},
		{"type":"contracts","contracts":"*","canRegister":true,"canGetMetadata":false},
		{"type":"simulation","transactions":[{"contract":"0xa","function":"swap"}],"utilities":"*"},
		{"type":"transaction","scope":"*"},
		{"type":"data","addressBook":true,"privateEvents":["0xa"]}
	]`
	var list List
	require.NoError(t, json.Unmarshal([]byte(input), &list))
	require.Len(t, list, 5)

	assert.Equal(t, Accounts{CanGet: true}, list[0])
	assert.Equal(t, Contracts{Contracts: AnyScope(), CanRegister: true}, list[1])
	assert.Equal(t, Transaction{Scope: PatternScope{All: true}}, list[3])

	out, err := json.Marshal(list)
	require.NoError(t, err)

	var again List
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, list, again)
}

func TestCapabilityJSON_Errors(t *testing.T) {
	var list List
	assert.Error(t, json.Unmarshal([]byte(`[{"type":"teleport"}]`), &list))
	assert.Error(t, json.Unmarshal([]byte(`[{"type":"contracts","contracts":"all"}]`), &list))
}
