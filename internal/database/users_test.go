package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galaxy/internal/models"
)

func TestInsertUserRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insertTestUser(t, store, "alice", "a@x.com", "engineer")

	cases := []struct {
		name     string
		username string
		email    string
	}{
		{"same email", "alice2", "a@x.com"},
		{"same username", "alice", "other@x.com"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := store.InsertUser(ctx, &models.User{Username: c.username, Email: c.email, Password: "h", ProfessionGroup: "other"})
			assert.ErrorIs(t, err, ErrUniqueConstraint)

			exists, err := store.EmailOrUsernameExists(ctx, c.email, c.username)
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}

	n, err := store.CountUsersByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	exists, err := store.EmailOrUsernameExists(ctx, "new@x.com", "newbie")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFindUserByCredentials(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id := insertTestUser(t, store, "alice", "a@x.com", "engineer")

	user, err := store.FindUserByCredentials(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "engineer", user.ProfessionGroup)
	assert.Equal(t, "#89ABCD", user.StarColor)

	_, err = store.FindUserByCredentials(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindUserByCredentials(ctx, "nobody@x.com", "pw")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindUserByCredentialsIgnoresEmailCase(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustExec(t, store.DB(), `INSERT INTO users (username, email, password) VALUES ('mixed', 'Alice@Example.com', 'abc123')`)

	for _, email := range []string{"Alice@Example.com", "alice@example.com", "ALICE@EXAMPLE.COM"} {
		user, err := store.FindUserByCredentials(ctx, email, "abc123")
		require.NoError(t, err, email)
		assert.Equal(t, "mixed", user.Username)
	}

	exists, err := store.EmailOrUsernameExists(ctx, "alice@example.com", "someone")
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := store.CountUsersByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPlaintextPasswordIsUpgraded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustExec(t, store.DB(), `INSERT INTO users (username, email, password) VALUES ('old', 'abc123@example.com', 'abc123')`)

	_, err := store.FindUserByCredentials(ctx, "abc123@example.com", "abc")
	assert.ErrorIs(t, err, ErrNotFound)

	user, err := store.FindUserByCredentials(ctx, "abc123@example.com", "abc123")
	require.NoError(t, err)
	assert.True(t, isPasswordHash(user.Password))

	var stored string
	require.NoError(t, store.DB().QueryRow("SELECT password FROM users WHERE id = ?", user.ID).Scan(&stored))
	assert.NoError(t, CheckPasswordHash(stored, "abc123"))

	_, err = store.FindUserByCredentials(ctx, "abc123@example.com", "abc123")
	assert.NoError(t, err)
}

func TestFindUserByID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id := insertTestUser(t, store, "alice", "a@x.com", "engineer")

	user, err := store.FindUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Real alice", user.RealName)

	_, err = store.FindUserByID(ctx, id+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListGroupMembers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	me := insertTestUser(t, store, "me", "me@x.com", "artist")
	insertTestUser(t, store, "zoe", "z@x.com", "artist")
	insertTestUser(t, store, "bob", "b@x.com", "artist")
	insertTestUser(t, store, "eve", "e@x.com", "engineer")

	members, err := store.ListGroupMembers(ctx, "artist", me)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "bob", members[0].Username)
	assert.Equal(t, "zoe", members[1].Username)
	assert.Empty(t, members[0].Password)
}

func TestUpdateUserProfile(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id := insertTestUser(t, store, "alice", "a@x.com", "engineer")
	insertTestUser(t, store, "bob", "b@x.com", "engineer")

	profile := models.Profile{RealName: "Alice A", Username: "alice_a", Profession: "painter", ProfessionGroup: "artist", StarColor: "#FFFFFF"}
	require.NoError(t, store.UpdateUserProfile(ctx, id, profile))

	user, err := store.FindUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice A", user.RealName)
	assert.Equal(t, "alice_a", user.Username)
	assert.Equal(t, "painter", user.Profession)
	assert.Equal(t, "artist", user.ProfessionGroup)
	assert.Equal(t, "#FFFFFF", user.StarColor)
	assert.Equal(t, "a@x.com", user.Email)

	profile.Username = "bob"
	assert.ErrorIs(t, store.UpdateUserProfile(ctx, id, profile), ErrUniqueConstraint)
	assert.ErrorIs(t, store.UpdateUserProfile(ctx, id+100, models.Profile{Username: "ghost"}), ErrNotFound)
}
