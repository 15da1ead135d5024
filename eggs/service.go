package eggs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/swiftie-vault/eastereggs/media"
)

const MaxTitleLength = 200

// Renderer turns a markdown description into HTML.
type Renderer interface {
	Render(source string) (html string, err error)
}

type Service struct {
	eggRepo  EggRepository
	uploader media.Uploader
	renderer Renderer
	catalog  Catalog
	now      func() time.Time
}

func NewService(eggRepo EggRepository, uploader media.Uploader, renderer Renderer) *Service {
	if uploader == nil {
		uploader = media.DisabledUploader{}
	}

	return &Service{
		eggRepo:  eggRepo,
		uploader: uploader,
		renderer: renderer,
		catalog:  DefaultCatalog(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (svc *Service) Catalog() Catalog {
	return Catalog{
		Albums:     slices.Clone(svc.catalog.Albums),
		MediaTypes: slices.Clone(svc.catalog.MediaTypes),
		ClueTypes:  slices.Clone(svc.catalog.ClueTypes),
	}
}

type CreateEggRequest struct {
	AuthorID    string
	Title       string
	Description string
	Album       string
	MediaType   string
	ClueType    string
	ImageURLs   media.ImageURLs
	VideoURL    string
	Image       *media.Upload
	Video       *media.Upload
}

func (svc *Service) CreateEgg(ctx context.Context, req CreateEggRequest) (*Egg, error) {
	timeNow := svc.now()

	egg := &Egg{
		ID:          uuid.NewString(),
		AuthorID:    req.AuthorID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Album:       strings.TrimSpace(req.Album),
		MediaType:   strings.TrimSpace(req.MediaType),
		ClueType:    strings.TrimSpace(req.ClueType),
		ImageURLs:   media.NewImageURLs(req.ImageURLs),
		VideoURL:    strings.TrimSpace(req.VideoURL),
		CreatedAt:   timeNow,
		UpdatedAt:   timeNow,
	}

	err := svc.validate(egg)
	if err != nil {
		return nil, err
	}

	uploaded := make([]string, 0, 2)

	if req.Image != nil {
		imageURL, err := svc.store(ctx, egg.ID, req.Image, media.KindImage)
		if err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}

		uploaded = append(uploaded, imageURL)
		egg.ImageURLs = append(egg.ImageURLs, imageURL)
	}

	if req.Video != nil {
		videoURL, err := svc.store(ctx, egg.ID, req.Video, media.KindVideo)
		if err != nil {
			svc.deleteMedia(ctx, uploaded)

			return nil, fmt.Errorf("failed to store video: %w", err)
		}

		uploaded = append(uploaded, videoURL)
		egg.VideoURL = videoURL
	}

	err = svc.eggRepo.Insert(ctx, egg)
	if err != nil {
		svc.deleteMedia(ctx, uploaded)

		return nil, fmt.Errorf("failed to insert easter egg: %w", err)
	}

	return svc.GetEgg(ctx, egg.ID)
}

type UpdateEggRequest struct {
	ID          string
	ActorID     string
	Title       *string
	Description *string
	Album       *string
	MediaType   *string
	ClueType    *string
	ImageURLs   *media.ImageURLs
	VideoURL    *string
	Image       *media.Upload
	Video       *media.Upload
	RemoveImage bool
	RemoveVideo bool
}

// UpdateEgg applies the given fields. A new image upload replaces the stored
// images and a new video replaces the stored video. Files no longer
// referenced are removed from storage after the update is saved.
func (svc *Service) UpdateEgg(ctx context.Context, req UpdateEggRequest) (*Egg, error) {
	egg, err := svc.ownedEgg(ctx, req.ID, req.ActorID)
	if err != nil {
		return nil, err
	}

	previous := egg.MediaURLs()

	setTrimmed(&egg.Title, req.Title)
	setTrimmed(&egg.Description, req.Description)
	setTrimmed(&egg.Album, req.Album)
	setTrimmed(&egg.MediaType, req.MediaType)
	setTrimmed(&egg.ClueType, req.ClueType)
	setTrimmed(&egg.VideoURL, req.VideoURL)

	if req.ImageURLs != nil {
		egg.ImageURLs = media.NewImageURLs(*req.ImageURLs)
	}

	if req.RemoveImage {
		egg.ImageURLs = media.ImageURLs{}
	}

	if req.RemoveVideo {
		egg.VideoURL = ""
	}

	err = svc.validate(egg)
	if err != nil {
		return nil, err
	}

	uploaded := make([]string, 0, 2)

	if req.Image != nil {
		imageURL, err := svc.store(ctx, egg.ID, req.Image, media.KindImage)
		if err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}

		uploaded = append(uploaded, imageURL)
		egg.ImageURLs = media.ImageURLs{imageURL}
	}

	if req.Video != nil {
		videoURL, err := svc.store(ctx, egg.ID, req.Video, media.KindVideo)
		if err != nil {
			svc.deleteMedia(ctx, uploaded)

			return nil, fmt.Errorf("failed to store video: %w", err)
		}

		uploaded = append(uploaded, videoURL)
		egg.VideoURL = videoURL
	}

	egg.UpdatedAt = svc.now()

	err = svc.eggRepo.Update(ctx, egg)
	if err != nil {
		svc.deleteMedia(ctx, uploaded)

		return nil, fmt.Errorf("failed to update easter egg: %w", err)
	}

	current := egg.MediaURLs()
	svc.deleteMedia(ctx, slices.DeleteFunc(previous, func(u string) bool {
		return slices.Contains(current, u)
	}))

	return svc.GetEgg(ctx, egg.ID)
}

// DeleteEgg removes an egg with its comments and likes. Stored files are
// removed best-effort afterwards.
func (svc *Service) DeleteEgg(ctx context.Context, eggID, actorID string) error {
	egg, err := svc.ownedEgg(ctx, eggID, actorID)
	if err != nil {
		return err
	}

	err = svc.eggRepo.Delete(ctx, egg.ID)
	if err != nil {
		return fmt.Errorf("failed to delete easter egg: %w", err)
	}

	svc.deleteMedia(ctx, egg.MediaURLs())

	return nil
}

func (svc *Service) GetEgg(ctx context.Context, eggID string) (*Egg, error) {
	egg, err := svc.eggRepo.Find(ctx, eggID)
	if err != nil {
		return nil, fmt.Errorf("failed to find easter egg: %w", err)
	}

	svc.renderDescription(ctx, egg)

	return egg, nil
}

func (svc *Service) ListEggs(ctx context.Context, params ListParams) ([]*Egg, error) {
	if params.Sort == "" {
		params.Sort = SortDate
	}

	params.Query = strings.TrimSpace(params.Query)

	eggs, err := svc.eggRepo.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list easter eggs: %w", err)
	}

	for _, egg := range eggs {
		svc.renderDescription(ctx, egg)
	}

	return eggs, nil
}

func (svc *Service) ownedEgg(ctx context.Context, eggID, actorID string) (*Egg, error) {
	egg, err := svc.eggRepo.Find(ctx, eggID)
	if err != nil {
		return nil, fmt.Errorf("failed to find easter egg: %w", err)
	}

	if actorID == "" || egg.AuthorID != actorID {
		return nil, NotOwnerError{EggID: eggID, UserID: actorID}
	}

	return egg, nil
}

func (svc *Service) validate(egg *Egg) error {
	switch {
	case egg.Title == "":
		return InvalidFieldError{Field: "title", Reason: "title is required"}
	case utf8.RuneCountInString(egg.Title) > MaxTitleLength:
		return InvalidFieldError{Field: "title", Reason: fmt.Sprintf("title must be at most %d characters", MaxTitleLength)}
	case egg.Description == "":
		return InvalidFieldError{Field: "description", Reason: "description is required"}
	case egg.VideoURL != "" && !media.IsValidURL(egg.VideoURL):
		return InvalidFieldError{Field: "video_url", Reason: "video url must be an absolute http(s) url"}
	}

	return svc.catalog.validate(egg.Album, egg.MediaType, egg.ClueType)
}

func (svc *Service) store(ctx context.Context, eggID string, upload *media.Upload, want media.Kind) (string, error) {
	kind, err := media.KindOf(upload.ContentType)
	if err != nil {
		return "", err
	}

	if kind != want {
		return "", media.UnsupportedContentTypeError{ContentType: upload.ContentType}
	}

	upload.Kind = kind
	upload.OwnerID = eggID

	publicURL, err := svc.uploader.Upload(ctx, *upload)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", kind, err)
	}

	return publicURL, nil
}

func (svc *Service) deleteMedia(ctx context.Context, urls []string) {
	for _, u := range urls {
		err := svc.uploader.Delete(ctx, u)
		if err == nil {
			continue
		}

		if errors.Is(err, media.ErrStorageDisabled) {
			return
		}

		slog.WarnContext(ctx, "failed to delete stored media", "url", u, "error", err)
	}
}

func (svc *Service) renderDescription(ctx context.Context, egg *Egg) {
	if svc.renderer == nil {
		return
	}

	html, err := svc.renderer.Render(egg.Description)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render description", "eggId", egg.ID, "error", err)

		return
	}

	egg.DescriptionHTML = html
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
