package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galaxy/internal/models"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	uid := insertTestUser(t, store, "alice", "a@x.com", "engineer")
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	sess := &models.Session{UserID: uid, Username: "alice", UUID: "token-1", Expires: expires}
	require.NoError(t, store.CreateSession(ctx, sess))
	assert.NotZero(t, sess.ID)

	found, err := store.FindSession(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, uid, found.UserID)
	assert.Equal(t, "alice", found.Username)
	assert.Equal(t, expires, found.Expires)

	require.NoError(t, store.DeleteSession(ctx, "token-1"))
	assert.ErrorIs(t, store.DeleteSession(ctx, "token-1"), ErrNotFound)
	_, err = store.FindSession(ctx, "token-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	uid := insertTestUser(t, store, "alice", "a@x.com", "engineer")
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, &models.Session{UserID: uid, UUID: "old", Expires: now.Add(-time.Hour)}))
	require.NoError(t, store.CreateSession(ctx, &models.Session{UserID: uid, UUID: "fresh", Expires: now.Add(time.Hour)}))

	n, err := store.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.FindSession(ctx, "fresh")
	require.NoError(t, err)

	require.NoError(t, store.DeleteUserSessions(ctx, uid))
	_, err = store.FindSession(ctx, "fresh")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenameUserSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	uid := insertTestUser(t, store, "alice", "a@x.com", "engineer")
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSession(ctx, &models.Session{UserID: uid, Username: "alice", UUID: "token-r", Expires: expires}))

	require.NoError(t, store.RenameUserSessions(ctx, uid, "alice_l"))

	found, err := store.FindSession(ctx, "token-r")
	require.NoError(t, err)
	assert.Equal(t, "alice_l", found.Username)
}
