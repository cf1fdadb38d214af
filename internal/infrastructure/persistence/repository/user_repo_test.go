package repository

import (
	"context"
	"testing"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(setupTestDB(t).DB, zap.NewNop())

	user := &entity.User{Username: "alice", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, user))
	assert.Positive(t, user.ID)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	err = repo.Create(ctx, &entity.User{Username: "alice", PasswordHash: "other"})
	assert.ErrorIs(t, err, entity.ErrUserExists)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
