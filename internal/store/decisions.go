// ABOUTME: Authorization decision audit trail for the SQLite store
// ABOUTME: Records which app was approved, denied or timed out for which methods

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendDecision appends a decision to the audit trail.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendDecision(ctx context.Context, rec *DecisionRecord) error {
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
		return fmt.Errorf("marshaling decision methods: %w", err)
	}

	query := `
		INSERT INTO decisions (decision_id, request_id, app_id, outcome, methods_json, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.AppID,
		string(rec.Outcome),
		string(methodsJSON),
		rec.Timestamp.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}

	s.logger.Debug("recorded decision",
		"id", rec.ID,
		"request_id", rec.RequestID,
		"app_id", rec.AppID,
		"outcome", rec.Outcome,
	)
	return nil
}

const decisionQuery = `
	SELECT decision_id, request_id, app_id, outcome, methods_json, ts
	FROM decisions
	WHERE (? = '' OR app_id = ?)
	ORDER BY seq DESC
	LIMIT ?
`

// ListDecisions returns decisions newest first. An empty appID lists every app.
func (s *SQLiteStore) ListDecisions(ctx context.Context, appID string, limit int) ([]*DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, decisionQuery, appID, appID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*DecisionRecord, 0)
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decisions: %w", err)
	}
	return out, nil
}

// scanDecision scans a row into a DecisionRecord.
func scanDecision(scanner interface{ Scan(dest ...any) error }) (*DecisionRecord, error) {
	var rec DecisionRecord
	var outcome, methodsJSON, ts string

	if err := scanner.Scan(&rec.ID, &rec.RequestID, &rec.AppID, &outcome, &methodsJSON, &ts); err != nil {
		return nil, fmt.Errorf("scanning decision: %w", err)
	}
	rec.Outcome = DecisionOutcome(outcome)
	if err := json.Unmarshal([]byte(methodsJSON), &rec.Methods); err != nil {
		return nil, fmt.Errorf("unmarshaling decision methods: %w", err)
	}
	t, err := time.Parse(timeFormat, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	rec.Timestamp = t
	return &rec, nil
}
