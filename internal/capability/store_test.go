package capability

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/store"
)

func newTestStore(t *testing.T) (*Store, *store.MemoryStore, *clock.FakeClock) {
	t.Helper()
	kv := store.NewMemoryStore()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewStore(kv, Options{Clock: clk}), kv, clk
}

func TestStore_SaveAndLookupExact(t *testing.T) {
	s, kv, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "app1", "getAccounts", json.RawMessage(`{ "accounts" : [ {"item":"0xAB","alias":"a1"} ] }`)))

	// Stored under "{appId}:{storageKey}" in canonical form
	raw, err := kv.Get(ctx, "app1:getAccounts")
	require.NoError(t, err)
	assert.Equal(t, `{"accounts":[{"alias":"a1","item":"0xAB"}]}`, string(raw))

	payload, matched, ok, err := s.Lookup(ctx, "app1", "getAccounts")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "getAccounts", matched)
	assert.JSONEq(t, `{"accounts":[{"alias":"a1","item":"0xAB"}]}`, string(payload))

	// Other apps do not see it
	_, _, ok, err = s.Lookup(ctx, "app2", "getAccounts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_LookupPrefersNarrowerKey(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "app1", "simulateTx:*", json.RawMessage(`"broad"`)))
	require.NoError(t, s.Save(ctx, "app1", "simulateTx:addrA:*", json.RawMessage(`"narrow"`)))

	payload, matched, ok, err := s.Lookup(ctx, "app1", "simulateTx:addrA:swap")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "simulateTx:addrA:*", matched)
	assert.Equal(t, `"narrow"`, string(payload))

	_, matched, ok, err = s.Lookup(ctx, "app1", "simulateTx:addrB:swap")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "simulateTx:*", matched)

	require.NoError(t, s.Save(ctx, "app1", "simulateTx:addrA:swap", nil))
	_, matched, _, err = s.Lookup(ctx, "app1", "simulateTx:addrA:swap")
	require.NoError(t, err)
	assert.Equal(t, "simulateTx:addrA:swap", matched)
}

func TestStore_CrossMethodIsolation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "app1", "sendTx:*", nil))

	for _, key := range []string{"simulateTx:*", "simulateTx:0xa:swap", "simulateUtility:0xa:view", "getAccounts"} {
		_, _, ok, err := s.Lookup(ctx, "app1", key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestStore_RejectsBadIdentifiers(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Save(ctx, "bad:app", "getAccounts", nil), ErrInvalidAppID)
	assert.ErrorIs(t, s.Save(ctx, "app1", "", nil), ErrInvalidKey)
	assert.ErrorIs(t, s.Save(ctx, "app1", BehaviorKey, nil), ErrInvalidKey)
	assert.Error(t, s.Save(ctx, "app1", "getAccounts", json.RawMessage(`{not json`)))
}

func TestStore_StoreGrantsFullReplace(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetBehavior(ctx, "app1", Behavior{Mode: ModeStrict}))
	require.NoError(t, s.Save(ctx, "app1", "sendTx:0xa:transfer", nil))

	g1 := []Capability{
		Accounts{CanGet: true, CanCreateAuthWit: true},
		Transaction{Scope: PatternScope{All: true}},
		Data{AddressBook: true},
	}
	written, err := s.StoreGrants(ctx, "app1", g1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"getAccounts", "createAuthWit", "sendTx:*", "getAddressBook"}, written)

	keys, err := s.Keys(ctx, "app1")
	require.NoError(t, err)
	// The earlier ad-hoc approval is gone
	assert.Equal(t, []string{"createAuthWit", "getAccounts", "getAddressBook", "sendTx:*"}, keys)

	g2 := []Capability{Accounts{CanGet: true}}
	_, err = s.StoreGrants(ctx, "app1", g2)
	require.NoError(t, err)

	keys, err = s.Keys(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, []string{"getAccounts"}, keys)

	// Behavior survives grant replacement
	b, err := s.Behavior(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, b.Mode)
}

func TestStore_RevokeApp(t *testing.T) {
	s, kv, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetBehavior(ctx, "app1", Behavior{Mode: ModeStrict}))
	require.NoError(t, s.Save(ctx, "app1", "getAccounts", nil))
	require.NoError(t, s.Save(ctx, "app1", "sendTx:*", nil))
	require.NoError(t, s.Save(ctx, "app10", "getAccounts", nil))

	n, err := s.RevokeApp(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	remaining, err := kv.Keys(ctx, "app1:")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Prefix match stops at the separator
	_, _, ok, err := s.Lookup(ctx, "app10", "getAccounts")
	require.NoError(t, err)
	assert.True(t, ok)

	b, err := s.Behavior(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, ModePermissive, b.Mode)
}

func TestStore_RevokeKey(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "app1", "getAccounts", nil))
	require.NoError(t, s.Save(ctx, "app1", "sendTx:*", nil))
	require.NoError(t, s.RevokeKey(ctx, "app1", "sendTx:*"))

	keys, err := s.Keys(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, []string{"getAccounts"}, keys)
}

func TestStore_BehaviorLazyExpiry(t *testing.T) {
	s, kv, clk := newTestStore(t)
	ctx := context.Background()

	expires := clk.Now().Add(time.Hour)
	require.NoError(t, s.SetBehavior(ctx, "app1", Behavior{Mode: ModeStrict, ExpiresAt: &expires}))

	b, err := s.Behavior(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, b.Mode)
	require.NotNil(t, b.ExpiresAt)
	assert.True(t, b.ExpiresAt.Equal(expires))

	clk.Advance(time.Hour)

	b, err = s.Behavior(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, ModePermissive, b.Mode)
	assert.Nil(t, b.ExpiresAt)

	_, err = kv.Get(ctx, "app1:"+BehaviorKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DefaultMode(t *testing.T) {
	s := NewStore(store.NewMemoryStore(), Options{DefaultMode: ModeStrict})
	b, err := s.Behavior(context.Background(), "fresh-app")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, b.Mode)

	assert.Error(t, s.SetBehavior(context.Background(), "fresh-app", Behavior{Mode: "lenient"}))
}

func TestStore_ListApps(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "zeta", "getAccounts", nil))
	require.NoError(t, s.Save(ctx, "alpha", "getAccounts", nil))
	require.NoError(t, s.Save(ctx, "alpha", "sendTx:*", nil))
	require.NoError(t, s.SetBehavior(ctx, "mid", Behavior{Mode: ModeStrict}))

	apps, err := s.ListApps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, apps)
}

func TestStore_ReconstructAfterGrant(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreGrants(ctx, "app1", []Capability{Accounts{CanGet: true}})
	require.NoError(t, err)

	caps, err := s.Reconstruct(ctx, "app1")
	require.NoError(t, err)

	var keys []string
	for _, c := range caps {
		keys = append(keys, ToStorageKeys(c)...)
	}
	assert.Equal(t, []string{"getAccounts"}, keys)
}

func TestStore_ReconstructCarriesAccounts(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	granted := []Account{{Alias: "a1", Item: "0xAB"}}
	_, err := s.StoreGrants(ctx, "app1", []Capability{Accounts{CanGet: true, Accounts: granted}})
	require.NoError(t, err)

	caps, err := s.Reconstruct(ctx, "app1")
	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, Accounts{CanGet: true, Accounts: granted}, caps[0])
}

func TestStore_FunctionGrantDoesNotCoverOtherFunctions(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	grant := Transaction{Scope: PatternScope{Patterns: []FunctionPattern{{Contract: "*", Function: "transfer"}}}}
	keys, err := s.StoreGrants(ctx, "app1", []Capability{grant})
	require.NoError(t, err)
	assert.Equal(t, []string{"sendTx:*:transfer"}, keys)

	_, _, ok, err := s.Lookup(ctx, "app1", "sendTx:0xtoken:burnAll")
	require.NoError(t, err)
	assert.False(t, ok, "a grant for one function must not approve another")

	_, _, ok, err = s.Lookup(ctx, "app1", "sendTx:0xtoken:transfer")
	require.NoError(t, err)
	assert.False(t, ok, "function-on-any-contract grants are not reachable through the fallbacks")
}
