package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM wallet_kv WHERE key = $1")).
		WithArgs("app1:getAccounts").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"accounts":["0x1"]}`)))

	v, err := store.Get(ctx, "app1:getAccounts")
	require.NoError(t, err)
	assert.JSONEq(t, `{"accounts":["0x1"]}`, string(v))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM wallet_kv WHERE key = $1")).
		WithArgs("app1:missing").
		WillReturnError(sql.ErrNoRows)

	_, err = store.Get(ctx, "app1:missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetUpserts(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_kv")).
		WithArgs("app1:__behavior__", []byte(`{"mode":"strict"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Set(context.Background(), "app1:__behavior__", []byte(`{"mode":"strict"}`))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetError(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_kv")).
		WillReturnError(errors.New("connection reset"))

	err := store.Set(context.Background(), "k", []byte("true"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_KeysAndDelete(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key FROM wallet_kv WHERE starts_with(key, $1) ORDER BY key")).
		WithArgs("app1:").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("app1:getAccounts").AddRow("app1:sendTx:0xabc:transfer"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM wallet_kv WHERE key = $1")).
		WithArgs("app1:getAccounts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	keys, err := store.Keys(ctx, "app1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"app1:getAccounts", "app1:sendTx:0xabc:transfer"}, keys)

	require.NoError(t, store.Delete(ctx, "app1:getAccounts"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Decisions(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_decisions")).
		WithArgs("dec-1", "req-1", "app1", "denied", []byte(`["sendTx"]`), ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM wallet_decisions")).
		WithArgs("app1", 100).
		WillReturnRows(sqlmock.NewRows([]string{"decision_id", "request_id", "app_id", "outcome", "methods", "ts"}).
			AddRow("dec-1", "req-1", "app1", "denied", []byte(`["sendTx"]`), ts))

	require.NoError(t, store.AppendDecision(ctx, &DecisionRecord{
		ID: "dec-1", RequestID: "req-1", AppID: "app1", Outcome: DecisionDenied, Methods: []string{"sendTx"}, Timestamp: ts,
	}))

	list, err := store.ListDecisions(ctx, "app1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, DecisionDenied, list[0].Outcome)
	assert.Equal(t, []string{"sendTx"}, list[0].Methods)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InteractionHistoryNotFound(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM wallet_interactions WHERE interaction_id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"interaction_id", "version", "app_id", "type", "status", "complete", "title", "description", "ts"}))

	_, err := store.ListInteractionHistory(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
