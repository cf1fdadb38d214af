package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"go.uber.org/zap"
)

type contextKey string

const txKey contextKey = "tx"

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxManager implements port.TransactionManager by carrying the *sql.Tx in the context
type TxManager struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTxManager creates a transaction manager over db
func NewTxManager(db *sql.DB, logger *zap.Logger) *TxManager {
	return &TxManager{
		db:     db,
		logger: logger,
	}
}

// WithTransaction runs fn inside a transaction. Nested calls join the outer transaction.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := extractTx(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			m.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		m.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ExecutorFrom returns the transaction stored in ctx, or db when there is none
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db
}

func extractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

var _ port.TransactionManager = (*TxManager)(nil)
