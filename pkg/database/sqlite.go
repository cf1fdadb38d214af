package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const busyTimeoutMillis = 5000

// Config describes the embedded invoice store
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB is the invoice store handle
type DB struct {
	*sql.DB
	path   string
	logger *zap.Logger
}

// New opens (or creates) the invoice store at cfg.Path
func New(cfg Config, logger *zap.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := ensureDir(cfg.Path); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	applyPool(sqlDB, cfg)

	db := &DB{DB: sqlDB, path: cfg.Path, logger: logger}
	if err := db.Ping(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("Invoice store opened",
		zap.String("path", cfg.Path),
		zap.Int("max_open_conns", cfg.MaxOpenConns))
	return db, nil
}

// dsn enables WAL so list queries do not block the single writer
func dsn(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", fmt.Sprint(busyTimeoutMillis))
	params.Set("_foreign_keys", "on")
	return "file:" + path + "?" + params.Encode()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

func applyPool(sqlDB *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// Path returns the file backing the store
func (db *DB) Path() string {
	return db.path
}

// Ping checks that the store answers queries
func (db *DB) Ping(ctx context.Context) error {
	if err := db.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database %s: %w", db.path, err)
	}
	return nil
}

// WithTransaction runs fn in one transaction, rolling back on error or panic
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			db.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Close closes the store
func (db *DB) Close() error {
	db.logger.Info("Closing invoice store", zap.String("path", db.path))
	return db.DB.Close()
}
