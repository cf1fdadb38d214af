package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/garyjia/invoice-vision/internal/infrastructure/persistence/sqlite"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new account. A taken username yields entity.ErrUserExists.
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`

	now := time.Now().UTC()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, user.Username, user.PasswordHash, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return entity.ErrUserExists
		}
		r.logger.Error("Failed to create user", zap.String("username", user.Username), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	return nil
}

// GetByUsername returns entity.ErrNotFound for unknown usernames
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	query := `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`

	var user entity.User
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
