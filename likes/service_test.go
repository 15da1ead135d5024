package likes_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftie-vault/eastereggs/db/sqlite3"
	"github.com/swiftie-vault/eastereggs/likes"
)

func newService(t *testing.T) *likes.Service {
	t.Helper()

	db, err := sqlite3.NewDB(t.Context(), fmt.Sprintf("file:likes-%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, sqlite3.MigrateUp(t.Context(), db))

	return likes.NewService(sqlite3.NewLikeRepository(db))
}

func TestToggle(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	svc := newService(t)

	result, err := svc.Toggle(ctx, likes.TargetTypeEgg, "egg-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, &likes.ToggleResult{Liked: true, Action: likes.ActionLiked, Count: 1}, result)

	result, err = svc.Toggle(ctx, likes.TargetTypeEgg, "egg-1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)

	result, err = svc.Toggle(ctx, likes.TargetTypeEgg, "egg-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, &likes.ToggleResult{Liked: false, Action: likes.ActionUnliked, Count: 1}, result)

	liked, err := svc.Liked(ctx, likes.TargetTypeEgg, "egg-1", "u2")
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = svc.Liked(ctx, likes.TargetTypeEgg, "egg-1", "")
	require.NoError(t, err)
	assert.False(t, liked)

	count, err := svc.Count(ctx, likes.TargetTypeEgg, "egg-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestToggle_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	svc := newService(t)

	const toggles = 10

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		actions = map[string]int{}
	)

	for range toggles {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result, err := svc.Toggle(ctx, likes.TargetTypeEgg, "egg-1", "u1")
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			actions[result.Action]++
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, map[string]int{likes.ActionLiked: toggles / 2, likes.ActionUnliked: toggles / 2}, actions)

	count, err := svc.Count(ctx, likes.TargetTypeEgg, "egg-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestToggle_InvalidTargetType(t *testing.T) {
	t.Parallel()

	_, err := newService(t).Toggle(t.Context(), likes.TargetType("post"), "x", "u1")

	var invalidErr likes.InvalidTargetTypeError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, likes.TargetType("post"), invalidErr.TargetType)
}

func TestLikers(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	svc := newService(t)

	for _, userID := range []string{"u1", "u2"} {
		_, err := svc.Toggle(ctx, likes.TargetTypeComment, "c1", userID)
		require.NoError(t, err)
	}

	_, err := svc.Toggle(ctx, likes.TargetTypeEgg, "c2", "u1")
	require.NoError(t, err)

	likers, err := svc.CommentLikers(ctx, []string{"c1", "c2"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, likers["c1"])
	assert.Equal(t, []string{}, likers["c2"])

	ids, err := svc.LikedTargetIDs(ctx, likes.TargetTypeComment, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}
