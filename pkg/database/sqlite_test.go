package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:data/invoices.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", dsn("data/invoices.db"))
}

func TestWithTransaction(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Ping(ctx))
	assert.Contains(t, db.Path(), "test.db")

	_, err := db.ExecContext(ctx, "CREATE TABLE items (name TEXT)")
	require.NoError(t, err)

	insert := func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES ('a')")
		return err
	}

	boom := errors.New("boom")
	err = db.WithTransaction(ctx, func(tx *sql.Tx) error {
		require.NoError(t, insert(tx))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, db.WithTransaction(ctx, insert))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 1, count)
}
