// Package media normalizes stored image references and abstracts the object
// storage that uploaded images and videos live in.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// KindOf maps a MIME type to the kind of media it carries.
func KindOf(contentType string) (Kind, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage, nil
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo, nil
	default:
		return "", UnsupportedContentTypeError{ContentType: contentType}
	}
}

// Upload is one file to store.
type Upload struct {
	Kind        Kind
	OwnerID     string
	Filename    string
	ContentType string
	Body        io.Reader
}

// Uploader stores media and returns public URLs.
type Uploader interface {
	Upload(ctx context.Context, upload Upload) (publicURL string, err error)
	Delete(ctx context.Context, publicURL string) (err error)
}

var ErrStorageDisabled = errors.New("media storage is not configured")

type UnsupportedContentTypeError struct {
	ContentType string
}

func (err UnsupportedContentTypeError) Error() string {
	return fmt.Sprintf("content type %q is not an image or video", err.ContentType)
}

// DisabledUploader rejects every upload. It is used when no storage is configured.
type DisabledUploader struct{}

var _ Uploader = DisabledUploader{}

func (DisabledUploader) Upload(context.Context, Upload) (string, error) {
	return "", ErrStorageDisabled
}

func (DisabledUploader) Delete(context.Context, string) error {
	return ErrStorageDisabled
}
