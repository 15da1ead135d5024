package sqlite3_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftie-vault/eastereggs/db/sqlite3"
	"github.com/swiftie-vault/eastereggs/discuss"
	"github.com/swiftie-vault/eastereggs/eggs"
	"github.com/swiftie-vault/eastereggs/likes"
	"github.com/swiftie-vault/eastereggs/media"
)

var baseTime = time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)

func insertEgg(t *testing.T, db *sql.DB, authorID, title, album string, age time.Duration) *eggs.Egg {
	t.Helper()

	egg := &eggs.Egg{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		Title:       title,
		Description: "description of " + title,
		Album:       album,
		ImageURLs:   media.ImageURLs{"https://img.test/" + title + ".png"},
		CreatedAt:   baseTime.Add(-age),
		UpdatedAt:   baseTime.Add(-age),
	}

	err := sqlite3.NewEggRepository(db).Insert(t.Context(), egg)
	require.NoError(t, err)

	return egg
}

func insertComment(t *testing.T, db *sql.DB, eggID, authorID string, parentID *string, age time.Duration) *discuss.Comment {
	t.Helper()

	comment := &discuss.Comment{
		ID:              uuid.NewString(),
		EggID:           eggID,
		AuthorID:        authorID,
		ParentCommentID: parentID,
		Content:         "comment",
		CreatedAt:       baseTime.Add(-age),
	}

	err := sqlite3.NewCommentRepository(db).Insert(t.Context(), comment)
	require.NoError(t, err)

	return comment
}

func like(t *testing.T, db *sql.DB, targetType likes.TargetType, targetID, userID string) {
	t.Helper()

	inserted, err := sqlite3.NewLikeRepository(db).Insert(t.Context(), &likes.Like{
		TargetType: targetType,
		TargetID:   targetID,
		UserID:     userID,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func eggIDs(list []*eggs.Egg) []string {
	ids := make([]string, 0, len(list))
	for _, egg := range list {
		ids = append(ids, egg.ID)
	}

	return ids
}

func TestEggRepository_FindWithCounts(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := newTestDB(t)
	repo := sqlite3.NewEggRepository(db)

	author := insertUser(t, db, "swift13")
	fan := insertUser(t, db, "fan")
	egg := insertEgg(t, db, author.ID, "clock", "Midnights", 0)

	like(t, db, likes.TargetTypeEgg, egg.ID, author.ID)
	like(t, db, likes.TargetTypeEgg, egg.ID, fan.ID)
	insertComment(t, db, egg.ID, fan.ID, nil, 0)

	found, err := repo.Find(ctx, egg.ID)
	require.NoError(t, err)
	assert.Equal(t, "swift13", found.AuthorUsername)
	assert.Equal(t, media.ImageURLs{"https://img.test/clock.png"}, found.ImageURLs)
	assert.Equal(t, 2, found.UpvotesCount)
	assert.Equal(t, 1, found.CommentsCount)
	assert.True(t, found.CreatedAt.Equal(egg.CreatedAt))

	_, err = repo.Find(ctx, "missing")

	var notFoundErr eggs.EggNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestEggRepository_Update(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := newTestDB(t)
	repo := sqlite3.NewEggRepository(db)

	egg := insertEgg(t, db, "u1", "clock", "", 0)
	egg.Title = "clock tower"
	egg.ImageURLs = media.ImageURLs{}
	egg.VideoURL = "https://video.test/v.mp4"

	require.NoError(t, repo.Update(ctx, egg))

	found, err := repo.Find(ctx, egg.ID)
	require.NoError(t, err)
	assert.Equal(t, "clock tower", found.Title)
	assert.Empty(t, found.ImageURLs)
	assert.Equal(t, "https://video.test/v.mp4", found.VideoURL)

	var raw string

	err = db.QueryRowContext(ctx, "SELECT image_url FROM eggs WHERE id = ?", egg.ID).Scan(&raw)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	var notFoundErr eggs.EggNotFoundError
	require.ErrorAs(t, repo.Update(ctx, &eggs.Egg{ID: "missing"}), &notFoundErr)
}

func TestEggRepository_List(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := newTestDB(t)
	repo := sqlite3.NewEggRepository(db)

	newest := insertEgg(t, db, "u1", "Clock at 12", "Midnights", 0)
	middle := insertEgg(t, db, "u2", "Cardigan 50%", "Folklore", time.Hour)
	oldest := insertEgg(t, db, "u1", "Snake", "Reputation", 2*time.Hour)

	like(t, db, likes.TargetTypeEgg, oldest.ID, "u1")
	like(t, db, likes.TargetTypeEgg, oldest.ID, "u2")
	like(t, db, likes.TargetTypeEgg, middle.ID, "u2")
	insertComment(t, db, middle.ID, "u1", nil, 0)
	insertComment(t, db, middle.ID, "u2", nil, 0)
	insertComment(t, db, newest.ID, "u2", nil, 0)

	tests := []struct {
		name     string
		params   eggs.ListParams
		expected []string
	}{
		{name: "date", params: eggs.ListParams{Sort: eggs.SortDate}, expected: []string{newest.ID, middle.ID, oldest.ID}},
		{name: "likes", params: eggs.ListParams{Sort: eggs.SortLikes}, expected: []string{oldest.ID, middle.ID, newest.ID}},
		{name: "comments", params: eggs.ListParams{Sort: eggs.SortComments}, expected: []string{middle.ID, newest.ID, oldest.ID}},
		{name: "album", params: eggs.ListParams{Album: "Folklore"}, expected: []string{middle.ID}},
		{name: "author", params: eggs.ListParams{AuthorID: "u1"}, expected: []string{newest.ID, oldest.ID}},
		{name: "query matches title case-insensitively", params: eggs.ListParams{Query: "CLOCK"}, expected: []string{newest.ID}},
		{name: "query matches album", params: eggs.ListParams{Query: "reput"}, expected: []string{oldest.ID}},
		{name: "query percent is literal", params: eggs.ListParams{Query: "50%"}, expected: []string{middle.ID}},
		{name: "query underscore is literal", params: eggs.ListParams{Query: "_"}, expected: []string{}},
		{name: "liked by", params: eggs.ListParams{LikedBy: "u2"}, expected: []string{middle.ID, oldest.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, eggIDs(list))
		})
	}
}

func TestEggRepository_DeleteCascades(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := newTestDB(t)
	repo := sqlite3.NewEggRepository(db)
	likeRepo := sqlite3.NewLikeRepository(db)

	egg := insertEgg(t, db, "u1", "clock", "", 0)
	other := insertEgg(t, db, "u1", "snake", "", time.Hour)

	comment := insertComment(t, db, egg.ID, "u2", nil, 0)
	otherComment := insertComment(t, db, other.ID, "u2", nil, 0)

	like(t, db, likes.TargetTypeEgg, egg.ID, "u2")
	like(t, db, likes.TargetTypeComment, comment.ID, "u1")
	like(t, db, likes.TargetTypeComment, otherComment.ID, "u1")

	require.NoError(t, repo.Delete(ctx, egg.ID))

	count, err := likeRepo.Count(ctx, likes.TargetTypeEgg, egg.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = likeRepo.Count(ctx, likes.TargetTypeComment, comment.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = likeRepo.Count(ctx, likes.TargetTypeComment, otherComment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = sqlite3.NewCommentRepository(db).Count(ctx, egg.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	var notFoundErr eggs.EggNotFoundError
	require.ErrorAs(t, repo.Delete(ctx, egg.ID), &notFoundErr)
}
