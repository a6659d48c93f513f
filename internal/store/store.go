// ABOUTME: Persistence interfaces and record types for wallet-gateway
// ABOUTME: Defines the KV collaborator plus interaction journal and decision audit stores

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// KV is the persistence collaborator used by the capability store. Keys are
// flat strings; values are opaque bytes. Implementations must be safe for
// concurrent use. No transactions are offered: read-then-write sequences by
// callers can race and the last write wins.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns every key starting with prefix, sorted ascending.
	// An empty prefix scans the whole store.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Close releases any resources held by the store
	Close() error
}

// InteractionRecord is one persisted snapshot of an interaction's progress.
// Snapshots are append-only; (ID, Version) is unique.
type InteractionRecord struct {
	ID          string
	Version     int
	AppID       string
	Type        string
	Status      string
	Complete    bool
	Title       string
	Description string
	Timestamp   time.Time
}

// InteractionStore persists interaction snapshots.
type InteractionStore interface {
	AppendInteraction(ctx context.Context, rec *InteractionRecord) error
	ListInteractionHistory(ctx context.Context, id string) ([]*InteractionRecord, error)
	ListInteractions(ctx context.Context, appID string, limit int) ([]*InteractionRecord, error)
}

// DecisionOutcome is the final state of an authorization request.
type DecisionOutcome string

const (
	DecisionApproved     DecisionOutcome = "approved"
	DecisionDenied       DecisionOutcome = "denied"
	DecisionTimeout      DecisionOutcome = "timeout"
	DecisionStrict       DecisionOutcome = "strict_rejected"
	DecisionAutoApproved DecisionOutcome = "auto_approved"
)

// DecisionRecord is one entry of the authorization decision audit trail.
type DecisionRecord struct {
	ID        string
	RequestID string
	AppID     string
	Outcome   DecisionOutcome
	Methods   []string
	Timestamp time.Time
}

// DecisionStore persists the authorization decision audit trail.
type DecisionStore interface {
	AppendDecision(ctx context.Context, rec *DecisionRecord) error
	ListDecisions(ctx context.Context, appID string, limit int) ([]*DecisionRecord, error)
}

// normalizeLimit applies default (100) and cap (1000) to list limits.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
