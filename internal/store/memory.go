// ABOUTME: In-memory implementation of the KV, interaction and decision stores
// ABOUTME: Used by tests and by the "memory" storage driver

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory store. Values are copied on the way in and out
// so callers cannot mutate stored state.
type MemoryStore struct {
	mu           sync.RWMutex
	kv           map[string][]byte
	interactions map[string][]*InteractionRecord // keyed by interaction ID, in version order
	order        []string                        // interaction IDs in first-seen order
	decisions    []*DecisionRecord
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:           make(map[string][]byte),
		interactions: make(map[string][]*InteractionRecord),
	}
}

// Get returns a copy of the value stored under key.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.kv[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under key.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.kv[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.kv, key)
	return nil
}

// Keys returns all keys with the given prefix in ascending order.
func (m *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for k := range m.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// AppendInteraction stores a snapshot.
func (m *MemoryStore) AppendInteraction(ctx context.Context, rec *InteractionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rec
	if _, seen := m.interactions[r.ID]; !seen {
		m.order = append(m.order, r.ID)
	}
	m.interactions[r.ID] = append(m.interactions[r.ID], &r)
	return nil
}

// ListInteractionHistory returns every snapshot of one interaction, oldest first.
func (m *MemoryStore) ListInteractionHistory(ctx context.Context, id string) ([]*InteractionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, ok := m.interactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]*InteractionRecord, len(history))
	for i, r := range history {
		c := *r
		out[i] = &c
	}
	return out, nil
}

// ListInteractions returns the latest snapshot of each interaction for an app,
// newest interaction first.
func (m *MemoryStore) ListInteractions(ctx context.Context, appID string, limit int) ([]*InteractionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = normalizeLimit(limit)
	out := make([]*InteractionRecord, 0)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		history := m.interactions[m.order[i]]
		latest := *history[len(history)-1]
		if appID != "" && latest.AppID != appID {
			continue
		}
		out = append(out, &latest)
	}
	return out, nil
}

// AppendDecision stores a decision record.
func (m *MemoryStore) AppendDecision(ctx context.Context, rec *DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rec
	r.Methods = append([]string(nil), rec.Methods...)
	m.decisions = append(m.decisions, &r)
	return nil
}

// ListDecisions returns decisions for an app (all apps when appID is empty),
// newest first.
func (m *MemoryStore) ListDecisions(ctx context.Context, appID string, limit int) ([]*DecisionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = normalizeLimit(limit)
	out := make([]*DecisionRecord, 0)
	for i := len(m.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		d := m.decisions[i]
		if appID != "" && d.AppID != appID {
			continue
		}
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
