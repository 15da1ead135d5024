package sqlite3_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftie-vault/eastereggs/auth"
	"github.com/swiftie-vault/eastereggs/db/sqlite3"
)

func TestUserRepository(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := newTestDB(t)
	repo := sqlite3.NewUserRepository(db)

	swift := insertUser(t, db, "swift13")
	insertUser(t, db, "alwyn")

	found, err := repo.Find(ctx, swift.ID)
	require.NoError(t, err)
	assert.Equal(t, "swift13", found.Username)
	assert.Equal(t, "hash", found.PasswordHash)
	assert.WithinDuration(t, swift.RegisteredAt, found.RegisteredAt, time.Millisecond)

	found, err = repo.FindByUsername(ctx, "alwyn")
	require.NoError(t, err)
	assert.Equal(t, "alwyn", found.Username)

	usernames, err := repo.ListUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alwyn", "swift13"}, usernames)

	err = repo.Insert(ctx, &auth.User{ID: uuid.NewString(), Username: "swift13", PasswordHash: "x", RegisteredAt: time.Now()})

	var existsErr *auth.UserAlreadyExistsError
	require.ErrorAs(t, err, &existsErr)
	assert.Equal(t, "swift13", existsErr.Username)

	_, err = repo.Find(ctx, "missing")

	var notFoundErr *auth.UserNotFoundError
	require.ErrorAs(t, err, &notFoundErr)

	_, err = repo.FindByUsername(ctx, "missing")

	var byUsernameErr *auth.UserByUsernameNotFoundError
	require.ErrorAs(t, err, &byUsernameErr)
}
