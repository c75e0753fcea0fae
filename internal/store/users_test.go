// ABOUTME: Tests for user persistence
// ABOUTME: Covers username uniqueness and lookups by id and name

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := &User{
		ID:           "user-1",
		Username:     "alice",
		PasswordHash: "$2a$10$fakehash",
		DisplayName:  "Alice",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "$2a$10$fakehash", got.PasswordHash)
	assert.Equal(t, "Alice", got.DisplayName)

	byName, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "user-1", byName.ID)
}

func TestUsers_GetMissing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetUser(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUsers_DuplicateUsername(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestUser(t, store, "user-1", "alice")

	err := store.CreateUser(ctx, &User{
		ID:        "user-2",
		Username:  "alice",
		CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestUsers_Count(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	count, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	createTestUser(t, store, "user-1", "alice")
	createTestUser(t, store, "user-2", "bob")

	count, err = store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
