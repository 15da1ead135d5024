package likes

import (
	"context"
	"fmt"
	"time"
)

type Service struct {
	likeRepo LikeRepository
}

func NewService(likeRepo LikeRepository) *Service {
	return &Service{likeRepo: likeRepo}
}

const (
	ActionLiked   = "liked"
	ActionUnliked = "unliked"
)

type ToggleResult struct {
	Liked  bool
	Action string
	Count  int
}

// Toggle removes the user's like when present and adds it otherwise.
func (svc *Service) Toggle(
	ctx context.Context,
	targetType TargetType,
	targetID string,
	userID string,
) (*ToggleResult, error) {
	if !targetType.IsValid() {
		return nil, InvalidTargetTypeError{TargetType: targetType}
	}

	liked, err := svc.likeRepo.Toggle(ctx, &Like{
		TargetType: targetType,
		TargetID:   targetID,
		UserID:     userID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to toggle like: %w", err)
	}

	result := &ToggleResult{Liked: liked, Action: ActionUnliked}
	if liked {
		result.Action = ActionLiked
	}

	result.Count, err = svc.likeRepo.Count(ctx, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to count likes: %w", err)
	}

	return result, nil
}

func (svc *Service) Count(ctx context.Context, targetType TargetType, targetID string) (int, error) {
	if !targetType.IsValid() {
		return 0, InvalidTargetTypeError{TargetType: targetType}
	}

	count, err := svc.likeRepo.Count(ctx, targetType, targetID)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}

	return count, nil
}

// Liked is false for anonymous viewers.
func (svc *Service) Liked(ctx context.Context, targetType TargetType, targetID string, userID string) (bool, error) {
	if !targetType.IsValid() {
		return false, InvalidTargetTypeError{TargetType: targetType}
	}

	if userID == "" {
		return false, nil
	}

	exists, err := svc.likeRepo.Exists(ctx, targetType, targetID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check like: %w", err)
	}

	return exists, nil
}

func (svc *Service) LikedTargetIDs(ctx context.Context, targetType TargetType, userID string) ([]string, error) {
	if !targetType.IsValid() {
		return nil, InvalidTargetTypeError{TargetType: targetType}
	}

	ids, err := svc.likeRepo.ListTargetIDs(ctx, targetType, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list liked targets: %w", err)
	}

	return ids, nil
}

// Likers maps every target id to the users who like it. Targets without
// likes map to an empty slice.
func (svc *Service) Likers(ctx context.Context, targetType TargetType, targetIDs []string) (map[string][]string, error) {
	if !targetType.IsValid() {
		return nil, InvalidTargetTypeError{TargetType: targetType}
	}

	likers := make(map[string][]string, len(targetIDs))
	for _, id := range targetIDs {
		likers[id] = []string{}
	}

	if len(targetIDs) == 0 {
		return likers, nil
	}

	found, err := svc.likeRepo.ListByTargets(ctx, targetType, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list likes: %w", err)
	}

	for _, like := range found {
		likers[like.TargetID] = append(likers[like.TargetID], like.UserID)
	}

	return likers, nil
}

// CommentLikers is Likers for comments.
func (svc *Service) CommentLikers(ctx context.Context, commentIDs []string) (map[string][]string, error) {
	return svc.Likers(ctx, TargetTypeComment, commentIDs)
}
