package eggs

import (
	"context"
	"fmt"
	"time"

	"github.com/swiftie-vault/eastereggs/media"
)

type Egg struct {
	ID              string          `json:"id"`
	AuthorID        string          `json:"user_id"`
	AuthorUsername  string          `json:"username"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	DescriptionHTML string          `json:"description_html"`
	Album           string          `json:"album"`
	MediaType       string          `json:"media_type"`
	ClueType        string          `json:"clue_type"`
	ImageURLs       media.ImageURLs `json:"image_url"`
	VideoURL        string          `json:"video_url"`
	UpvotesCount    int             `json:"upvotes_count"`
	CommentsCount   int             `json:"comments_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MediaURLs lists every stored file the egg points at.
func (egg *Egg) MediaURLs() []string {
	urls := make([]string, 0, len(egg.ImageURLs)+1)
	urls = append(urls, egg.ImageURLs...)

	if egg.VideoURL != "" {
		urls = append(urls, egg.VideoURL)
	}

	return urls
}

type Sort string

const (
	SortDate     Sort = "date"
	SortLikes    Sort = "likes"
	SortComments Sort = "comments"
)

func ParseSort(s string) (Sort, error) {
	switch Sort(s) {
	case "", SortDate:
		return SortDate, nil
	case SortLikes, SortComments:
		return Sort(s), nil
	default:
		return "", InvalidSortError{Sort: s}
	}
}

type ListParams struct {
	Album    string
	Query    string
	AuthorID string
	LikedBy  string
	Sort     Sort
}

type EggRepository interface {
	Insert(ctx context.Context, egg *Egg) (err error)
	Find(ctx context.Context, eggID string) (egg *Egg, err error)
	Update(ctx context.Context, egg *Egg) (err error)
	// Delete removes the egg with its comments and every like on both.
	Delete(ctx context.Context, eggID string) (err error)
	List(ctx context.Context, params ListParams) (eggs []*Egg, err error)
}

type EggNotFoundError struct {
	ID string
}

func (err EggNotFoundError) Error() string {
	return fmt.Sprintf("easter egg with id %q not found", err.ID)
}

type NotOwnerError struct {
	EggID  string
	UserID string
}

func (err NotOwnerError) Error() string {
	return fmt.Sprintf("user %q does not own easter egg %q", err.UserID, err.EggID)
}

type InvalidFieldError struct {
	Field  string
	Reason string
}

func (err InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", err.Field, err.Reason)
}

type InvalidCatalogValueError struct {
	Field string
	Value string
}

func (err InvalidCatalogValueError) Error() string {
	return fmt.Sprintf("%q is not a known %s", err.Value, err.Field)
}

type InvalidSortError struct {
	Sort string
}

func (err InvalidSortError) Error() string {
	return fmt.Sprintf("unknown sort %q", err.Sort)
}
