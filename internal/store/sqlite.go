// ABOUTME: SQLite implementation of the KV, interaction and decision stores using modernc.org/sqlite
// ABOUTME: Provides capability grant persistence with automatic schema creation and migrations

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements KV, InteractionStore and DecisionStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS interactions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			interaction_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			app_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			complete INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL DEFAULT '',
			ts TEXT NOT NULL,
			UNIQUE(interaction_id, version)
		);

		CREATE INDEX IF NOT EXISTS idx_interactions_app ON interactions(app_id, seq);

		CREATE TABLE IF NOT EXISTS decisions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			decision_id TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL,
			app_id TEXT NOT NULL,
			outcome TEXT NOT NULL CHECK (outcome IN ('approved','denied','timeout','strict_rejected','auto_approved')),
			methods_json TEXT NOT NULL,
			ts TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_decisions_app ON decisions(app_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema changes to existing databases.
// Each migration checks whether it is needed before applying.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		check  string
		apply  string
		table  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('interactions') WHERE name = 'description'`,
			apply:  `ALTER TABLE interactions ADD COLUMN description TEXT NOT NULL DEFAULT ''`,
			table:  "interactions",
			column: "description",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Get returns the value stored under key
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading key %q: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting key %q: %w", key, err)
	}
	return nil
}

// Keys returns every key with the given prefix, sorted ascending
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	// instr() is used instead of LIKE so '%' and '_' in prefixes match literally
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE instr(key, ?) = 1 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("scanning keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keys: %w", err)
	}
	return keys, nil
}

// AppendInteraction stores one interaction snapshot
func (s *SQLiteStore) AppendInteraction(ctx context.Context, rec *InteractionRecord) error {
	query := `
		INSERT INTO interactions (interaction_id, version, app_id, type, status, complete, title, description, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Version,
		rec.AppID,
		rec.Type,
		rec.Status,
		boolToInt(rec.Complete),
		rec.Title,
		rec.Description,
		rec.Timestamp.UTC().Format(timeFormat),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("interaction %s version %d already recorded: %w", rec.ID, rec.Version, err)
		}
		return fmt.Errorf("inserting interaction: %w", err)
	}
	return nil
}

const interactionColumns = `interaction_id, version, app_id, type, status, complete, title, description, ts`

// ListInteractionHistory returns every snapshot of an interaction, oldest first
func (s *SQLiteStore) ListInteractionHistory(ctx context.Context, id string) ([]*InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions WHERE interaction_id = ? ORDER BY version`, id)
	if err != nil {
		return nil, fmt.Errorf("querying interaction history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanInteractions(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// ListInteractions returns the latest snapshot of each interaction,
// newest interaction first. An empty appID lists every app.
func (s *SQLiteStore) ListInteractions(ctx context.Context, appID string, limit int) ([]*InteractionRecord, error) {
	query := `
		SELECT ` + interactionColumns + `
		FROM interactions i
		WHERE (? = '' OR app_id = ?)
		  AND version = (SELECT MAX(version) FROM interactions WHERE interaction_id = i.interaction_id)
		ORDER BY (SELECT MIN(seq) FROM interactions WHERE interaction_id = i.interaction_id) DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, appID, appID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanInteractions(rows)
}

func scanInteractions(rows *sql.Rows) ([]*InteractionRecord, error) {
	out := make([]*InteractionRecord, 0)
	for rows.Next() {
		var rec InteractionRecord
		var complete int
		var ts string
		if err := rows.Scan(
			&rec.ID,
			&rec.Version,
			&rec.AppID,
			&rec.Type,
			&rec.Status,
			&complete,
			&rec.Title,
			&rec.Description,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		rec.Complete = complete != 0
		t, err := time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		rec.Timestamp = t
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating interactions: %w", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
