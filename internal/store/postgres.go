// ABOUTME: PostgreSQL implementation of the KV, interaction and decision stores using lib/pq
// ABOUTME: Intended for gateways sharing grant state across several instances

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore implements KV, InteractionStore and DecisionStore using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS wallet_kv (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS wallet_interactions (
		seq BIGSERIAL PRIMARY KEY,
		interaction_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		app_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		complete BOOLEAN NOT NULL DEFAULT FALSE,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		ts TIMESTAMPTZ NOT NULL,
		UNIQUE (interaction_id, version)
	);
	CREATE TABLE IF NOT EXISTS wallet_decisions (
		seq BIGSERIAL PRIMARY KEY,
		decision_id TEXT NOT NULL UNIQUE,
		request_id TEXT NOT NULL,
		app_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		methods JSONB NOT NULL,
		ts TIMESTAMPTZ NOT NULL
	)
`

// OpenPostgresStore connects to dsn, verifies the connection and creates the schema.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("postgres store initialized")
	return s, nil
}

// NewPostgresStore wraps an existing connection. The schema is not created;
// call Migrate for that.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, logger: slog.Default().With("component", "store")}
}

// Migrate creates the tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating postgres schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM wallet_kv WHERE key = $1", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO wallet_kv (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM wallet_kv WHERE key = $1", key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM wallet_kv WHERE starts_with(key, $1) ORDER BY key", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) AppendInteraction(ctx context.Context, rec *InteractionRecord) error {
	query := `
		INSERT INTO wallet_interactions (interaction_id, version, app_id, type, status, complete, title, description, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Version, rec.AppID, rec.Type, rec.Status, rec.Complete, rec.Title, rec.Description, rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

const postgresInteractionColumns = "interaction_id, version, app_id, type, status, complete, title, description, ts"

func (s *PostgresStore) ListInteractionHistory(ctx context.Context, id string) ([]*InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postgresInteractionColumns+" FROM wallet_interactions WHERE interaction_id = $1 ORDER BY version", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query interaction history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanPostgresInteractions(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PostgresStore) ListInteractions(ctx context.Context, appID string, limit int) ([]*InteractionRecord, error) {
	query := `
		SELECT ` + postgresInteractionColumns + ` FROM (
			SELECT DISTINCT ON (interaction_id) *,
				MIN(seq) OVER (PARTITION BY interaction_id) AS first_seq
			FROM wallet_interactions
			WHERE ($1 = '' OR app_id = $1)
			ORDER BY interaction_id, version DESC
		) latest
		ORDER BY first_seq DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, appID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPostgresInteractions(rows)
}

func scanPostgresInteractions(rows *sql.Rows) ([]*InteractionRecord, error) {
	out := make([]*InteractionRecord, 0)
	for rows.Next() {
		var rec InteractionRecord
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.AppID, &rec.Type, &rec.Status,
			&rec.Complete, &rec.Title, &rec.Description, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendDecision(ctx context.Context, rec *DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	methods := rec.Methods
	if methods == nil {
		methods = []string{}
	}
	methodsJSON, err := json.Marshal(methods)
	if err != nil {
		return fmt.Errorf("failed to marshal decision methods: %w", err)
	}

	query := `
		INSERT INTO wallet_decisions (decision_id, request_id, app_id, outcome, methods, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query, rec.ID, rec.RequestID, rec.AppID, string(rec.Outcome), methodsJSON, rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, appID string, limit int) ([]*DecisionRecord, error) {
	query := `
		SELECT decision_id, request_id, app_id, outcome, methods, ts
		FROM wallet_decisions
		WHERE ($1 = '' OR app_id = $1)
		ORDER BY seq DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, appID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*DecisionRecord, 0)
	for rows.Next() {
		var rec DecisionRecord
		var outcome string
		var methods []byte
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.AppID, &outcome, &methods, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		rec.Outcome = DecisionOutcome(outcome)
		if err := json.Unmarshal(methods, &rec.Methods); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision methods: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
