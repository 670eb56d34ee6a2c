package store

import (
	"context"
	"testing"

	"github.com/campusforum/memberd/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewPendingRepository()

	_, err := repo.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Put(ctx, types.PendingUser{Username: "alice", Password: "pw1"}))

	exists, err := repo.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pw1", got.Password)

	require.NoError(t, repo.Remove(ctx, "alice"))

	exists, err = repo.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, repo.Remove(ctx, "alice"), ErrNotFound)
}

func TestPendingRepositoryPutDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewPendingRepository()

	require.NoError(t, repo.Put(ctx, types.PendingUser{Username: "alice", Password: "pw1"}))
	err := repo.Put(ctx, types.PendingUser{Username: "alice", Password: "pw2"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pw1", got.Password, "duplicate put must not overwrite")
}
