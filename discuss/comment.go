package discuss

import (
	"context"
	"fmt"
	"time"
)

type Comment struct {
	ID              string    `json:"id"`
	EggID           string    `json:"easter_egg_id"`
	AuthorID        string    `json:"user_id"`
	AuthorUsername  string    `json:"username"`
	ParentCommentID *string   `json:"parent_comment_id"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
}

type CommentRepository interface {
	Insert(ctx context.Context, comment *Comment) (err error)
	Find(ctx context.Context, commentID string) (comment *Comment, err error)
	// List returns comments newest first.
	List(ctx context.Context, params *ListCommentsParams) (comments []*Comment, err error)
	Count(ctx context.Context, eggID string) (count int, err error)
}

type ListCommentsParams struct {
	EggID string
}

type CommentNotFoundError struct {
	ID string
}

func (err CommentNotFoundError) Error() string {
	return fmt.Sprintf("comment with id %q not found", err.ID)
}

type InvalidCommentError struct {
	Reason string
}

func (err InvalidCommentError) Error() string {
	return "invalid comment: " + err.Reason
}
