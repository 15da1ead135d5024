package discuss

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/swiftie-vault/eastereggs/thread"
)

const MaxContentLength = 5000

// CommentLikes reports who likes each comment.
type CommentLikes interface {
	CommentLikers(ctx context.Context, commentIDs []string) (likers map[string][]string, err error)
}

type Service struct {
	commentRepo CommentRepository
	likes       CommentLikes
}

func NewService(commentRepo CommentRepository, likes CommentLikes) *Service {
	return &Service{
		commentRepo: commentRepo,
		likes:       likes,
	}
}

type CreateCommentRequest struct {
	EggID    string
	AuthorID string
	Content  string
	ParentID string
}

// CreateComment stores a comment with its parent in the parent column. A
// leading reply marker in the content is stripped and, when no explicit
// parent is given, used as the parent.
func (svc *Service) CreateComment(ctx context.Context, req CreateCommentRequest) (*Comment, error) {
	parentID := strings.TrimSpace(req.ParentID)

	markerParent, content, _ := thread.ParseReplyMarker(strings.TrimSpace(req.Content))
	if parentID == "" {
		parentID = markerParent
	}

	content = strings.TrimSpace(content)

	switch {
	case content == "":
		return nil, InvalidCommentError{Reason: "content is required"}
	case utf8.RuneCountInString(content) > MaxContentLength:
		return nil, InvalidCommentError{Reason: fmt.Sprintf("content must be at most %d characters", MaxContentLength)}
	}

	var parent *string

	if parentID != "" {
		parentComment, err := svc.commentRepo.Find(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to find parent comment: %w", err)
		}

		if parentComment.EggID != req.EggID {
			return nil, CommentNotFoundError{ID: parentID}
		}

		parent = &parentComment.ID
	}

	comment := &Comment{
		ID:              uuid.NewString(),
		EggID:           req.EggID,
		AuthorID:        req.AuthorID,
		ParentCommentID: parent,
		Content:         content,
		CreatedAt:       time.Now().UTC(),
	}

	err := svc.commentRepo.Insert(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	created, err := svc.commentRepo.Find(ctx, comment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload comment: %w", err)
	}

	return created, nil
}

func (svc *Service) GetComment(ctx context.Context, commentID string) (*Comment, error) {
	comment, err := svc.commentRepo.Find(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}

	return comment, nil
}

func (svc *Service) ListComments(ctx context.Context, eggID string) ([]*Comment, error) {
	comments, err := svc.commentRepo.List(ctx, &ListCommentsParams{EggID: eggID})
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	return comments, nil
}

func (svc *Service) CountComments(ctx context.Context, eggID string) (int, error) {
	count, err := svc.commentRepo.Count(ctx, eggID)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}

	return count, nil
}

// Thread returns the comments of an egg as a reply tree. viewerID may be
// empty for anonymous viewers.
func (svc *Service) Thread(ctx context.Context, eggID string, viewerID string) ([]*thread.Node, error) {
	comments, err := svc.ListComments(ctx, eggID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(comments))
	for _, comment := range comments {
		ids = append(ids, comment.ID)
	}

	likers := map[string][]string{}

	if svc.likes != nil && len(ids) > 0 {
		likers, err = svc.likes.CommentLikers(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load comment likes: %w", err)
		}
	}

	records := make([]thread.Record, 0, len(comments))

	for _, comment := range comments {
		likedBy, ok := likers[comment.ID]
		if !ok {
			likedBy = []string{}
		}

		records = append(records, thread.Record{
			ID:              comment.ID,
			SubjectID:       comment.EggID,
			AuthorID:        comment.AuthorID,
			Username:        comment.AuthorUsername,
			Content:         comment.Content,
			ParentCommentID: comment.ParentCommentID,
			CreatedAt:       comment.CreatedAt,
			LikedBy:         likedBy,
		})
	}

	return thread.Build(records, thread.Options{ViewerID: viewerID}), nil
}

// IsNotFound reports whether err means a comment does not exist.
func IsNotFound(err error) bool {
	var notFoundErr CommentNotFoundError

	return errors.As(err, &notFoundErr)
}
