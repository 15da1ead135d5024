// Package supabase stores media in Supabase Storage buckets.
package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gosimple/slug"
	storage "github.com/supabase-community/storage-go"
	"github.com/swiftie-vault/eastereggs/media"
)

const cacheControlSeconds = "3600"

type Config struct {
	URL         string
	Key         string
	ImageBucket string
	VideoBucket string
}

type Uploader struct {
	client  *storage.Client
	baseURL string
	buckets map[media.Kind]string
	now     func() time.Time
}

var _ media.Uploader = (*Uploader)(nil)

func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, fmt.Errorf("supabase url and key are required: %w", media.ErrStorageDisabled)
	}

	baseURL := strings.TrimRight(cfg.URL, "/")

	return &Uploader{
		client:  storage.NewClient(baseURL+"/storage/v1", cfg.Key, nil),
		baseURL: baseURL,
		buckets: map[media.Kind]string{
			media.KindImage: cfg.ImageBucket,
			media.KindVideo: cfg.VideoBucket,
		},
		now: time.Now,
	}, nil
}

func (u *Uploader) Upload(ctx context.Context, upload media.Upload) (string, error) {
	bucket, ok := u.buckets[upload.Kind]
	if !ok || bucket == "" {
		return "", fmt.Errorf("no bucket configured for %s", upload.Kind)
	}

	objectPath := ObjectPath(upload.OwnerID, upload.Filename, u.now())

	contentType := upload.ContentType
	cacheControl := cacheControlSeconds
	upsert := false

	_, err := u.client.UploadFile(bucket, objectPath, upload.Body, storage.FileOptions{
		ContentType:  &contentType,
		CacheControl: &cacheControl,
		Upsert:       &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %q: %w", objectPath, bucket, err)
	}

	slog.InfoContext(ctx, "media uploaded", "bucket", bucket, "path", objectPath)

	return u.PublicURL(bucket, objectPath), nil
}

func (u *Uploader) Delete(ctx context.Context, publicURL string) error {
	bucket, objectPath, err := u.ParsePublicURL(publicURL)
	if err != nil {
		// not one of ours, e.g. an image linked by url
		slog.DebugContext(ctx, "skipping delete of foreign media", "url", publicURL)

		return nil
	}

	_, err = u.client.RemoveFile(bucket, []string{objectPath})
	if err != nil {
		return fmt.Errorf("failed to remove %s from bucket %q: %w", objectPath, bucket, err)
	}

	slog.InfoContext(ctx, "media removed", "bucket", bucket, "path", objectPath)

	return nil
}

func (u *Uploader) PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", u.baseURL, bucket, objectPath)
}

// ParsePublicURL extracts the bucket and object path from a URL built by PublicURL.
func (u *Uploader) ParsePublicURL(publicURL string) (bucket, objectPath string, err error) {
	const marker = "/storage/v1/object/public/"

	if !strings.HasPrefix(publicURL, u.baseURL+marker) {
		return "", "", NotOwnedURLError{URL: publicURL}
	}

	rest := strings.TrimPrefix(publicURL, u.baseURL+marker)
	rest, _, _ = strings.Cut(rest, "?")

	bucket, objectPath, found := strings.Cut(rest, "/")
	if !found || bucket == "" || objectPath == "" {
		return "", "", NotOwnedURLError{URL: publicURL}
	}

	unescaped, err := url.PathUnescape(objectPath)
	if err == nil {
		objectPath = unescaped
	}

	return bucket, objectPath, nil
}

// ObjectPath names an uploaded file: <owner>/<unix ms>-<slug><ext>.
func ObjectPath(ownerID, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	base := slug.Make(strings.TrimSuffix(path.Base(filename), path.Ext(filename)))

	if base == "" {
		base = "file"
	}

	return fmt.Sprintf("%s/%d-%s%s", ownerID, now.UnixMilli(), base, ext)
}

type NotOwnedURLError struct {
	URL string
}

func (err NotOwnedURLError) Error() string {
	return fmt.Sprintf("url %q does not point into this storage", err.URL)
}
