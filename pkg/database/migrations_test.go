package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "data", "test.db"), MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrator_RunMigrations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	migrator := NewMigrator(db, zap.NewNop())

	require.NoError(t, migrator.RunMigrations(ctx))

	version, err := migrator.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	// second run is a no-op
	require.NoError(t, migrator.RunMigrations(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 3, count)

	var tables int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('invoices', 'users')",
	).Scan(&tables))
	assert.Equal(t, 2, tables)
}

func TestMigrator_AmountTriggerRejectsNegative(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, NewMigrator(db, zap.NewNop()).RunMigrations(ctx))

	_, err := db.Exec(`INSERT INTO invoices (owner_identity, source_file_name, invoice_date, invoice_number,
		seller_name, seller_tax_id, subtotal, tax, total, invoice_type, category_suggestion, completeness_status)
		VALUES ('a', 'f', '2024/01/01', 'No', 'No', 'No', 0, 0, -1, 'x', 'y', 'INCOMPLETE')`)
	assert.Error(t, err)
}

func TestMigrator_OnlyAppliesMissingVersions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first := fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
	}
	require.NoError(t, NewMigratorFromFS(db, first, zap.NewNop()).RunMigrations(ctx))

	// version 1 would fail if re-applied since table a already exists
	second := fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"002_b.sql": {Data: []byte("ALTER TABLE a ADD COLUMN name TEXT;")},
	}
	m := NewMigratorFromFS(db, second, zap.NewNop())
	require.NoError(t, m.RunMigrations(ctx))

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestMigrator_DuplicateVersion(t *testing.T) {
	db := openTestDB(t)
	source := fstest.MapFS{
		"001_a.sql":     {Data: []byte("SELECT 1;")},
		"001_other.sql": {Data: []byte("SELECT 1;")},
	}
	err := NewMigratorFromFS(db, source, zap.NewNop()).RunMigrations(context.Background())
	assert.Error(t, err)
}
