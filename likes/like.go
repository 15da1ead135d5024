package likes

import (
	"context"
	"fmt"
	"time"
)

type TargetType string

const (
	TargetTypeEgg     TargetType = "egg"
	TargetTypeComment TargetType = "comment"
)

func (targetType TargetType) IsValid() bool {
	switch targetType {
	case TargetTypeEgg, TargetTypeComment:
		return true
	default:
		return false
	}
}

type Like struct {
	TargetType TargetType
	TargetID   string
	UserID     string
	CreatedAt  time.Time
}

type LikeRepository interface {
	// Insert reports false when the user already likes the target.
	Insert(ctx context.Context, like *Like) (inserted bool, err error)
	// Delete reports false when there was nothing to remove.
	Delete(ctx context.Context, targetType TargetType, targetID string, userID string) (deleted bool, err error)
	// Toggle removes the like when present and adds it otherwise, atomically.
	// It reports whether the user likes the target afterwards.
	Toggle(ctx context.Context, like *Like) (liked bool, err error)
	Exists(ctx context.Context, targetType TargetType, targetID string, userID string) (exists bool, err error)
	Count(ctx context.Context, targetType TargetType, targetID string) (count int, err error)
	ListByTargets(ctx context.Context, targetType TargetType, targetIDs []string) (likes []*Like, err error)
	ListTargetIDs(ctx context.Context, targetType TargetType, userID string) (targetIDs []string, err error)
}

type InvalidTargetTypeError struct {
	TargetType TargetType
}

func (err InvalidTargetTypeError) Error() string {
	return fmt.Sprintf("invalid like target type: %q", err.TargetType)
}
