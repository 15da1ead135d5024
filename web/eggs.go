package web

import (
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	authcontext "github.com/swiftie-vault/eastereggs/auth/context"
	"github.com/swiftie-vault/eastereggs/eggs"
	"github.com/swiftie-vault/eastereggs/likes"
	"github.com/swiftie-vault/eastereggs/media"
)

const multipartMemory = 32 << 20

// eggPayload carries the writable egg fields of a JSON or multipart body.
// Absent fields are nil.
type eggPayload struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Album       *string          `json:"album"`
	MediaType   *string          `json:"media_type"`
	ClueType    *string          `json:"clue_type"`
	ImageURLs   *media.ImageURLs `json:"image_url"`
	VideoURL    *string          `json:"video_url"`
	RemoveImage bool             `json:"remove_image"`
	RemoveVideo bool             `json:"remove_video"`

	Image *media.Upload `json:"-"`
	Video *media.Upload `json:"-"`

	files []multipart.File
}

func (p *eggPayload) close(r *http.Request) {
	for _, f := range p.files {
		err := f.Close()
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to close uploaded file", "error", err)
		}
	}

	if r.MultipartForm != nil {
		err := r.MultipartForm.RemoveAll()
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to remove multipart files", "error", err)
		}
	}
}

func (h *Handler) readEggPayload(w http.ResponseWriter, r *http.Request) (*eggPayload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var payload eggPayload

		err := h.decodeValidate(r, &payload)
		if err != nil {
			return nil, err
		}

		return &payload, nil
	}

	err := r.ParseMultipartForm(multipartMemory)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, maxBytesErr
		}

		return nil, RequestError{StatusCode: http.StatusBadRequest, Message: "Body is invalid multipart form"}
	}

	form := r.MultipartForm

	payload := &eggPayload{
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
		Album:       formValue(form, "album"),
		MediaType:   formValue(form, "media_type"),
		ClueType:    formValue(form, "clue_type"),
		VideoURL:    formValue(form, "video_url"),
		RemoveImage: formBool(form, "remove_image"),
		RemoveVideo: formBool(form, "remove_video"),
	}

	if raw := formValue(form, "image_url"); raw != nil {
		imageURLs := media.NewImageURLs(*raw)
		payload.ImageURLs = &imageURLs
	}

	payload.Image, err = payload.openFile(form, "image")
	if err != nil {
		payload.close(r)

		return nil, err
	}

	payload.Video, err = payload.openFile(form, "video")
	if err != nil {
		payload.close(r)

		return nil, err
	}

	return payload, nil
}

func (p *eggPayload) openFile(form *multipart.Form, key string) (*media.Upload, error) {
	headers := form.File[key]
	if len(headers) == 0 {
		return nil, nil
	}

	f, err := headers[0].Open()
	if err != nil {
		return nil, RequestError{StatusCode: http.StatusBadRequest, Message: "Failed to read uploaded " + key}
	}

	p.files = append(p.files, f)

	return &media.Upload{
		Filename:    headers[0].Filename,
		ContentType: headers[0].Header.Get("Content-Type"),
		Body:        f,
	}, nil
}

func formValue(form *multipart.Form, key string) *string {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}

	return &values[0]
}

func formBool(form *multipart.Form, key string) bool {
	value := formValue(form, key)
	if value == nil {
		return false
	}

	b, err := strconv.ParseBool(*value)

	return err == nil && b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func (h *Handler) HandleListEggs() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		sort, err := eggs.ParseSort(query.Get("sort"))
		if err != nil {
			respondError(w, r, err)

			return
		}

		params := eggs.ListParams{
			Album:    query.Get("album"),
			Query:    query.Get("q"),
			AuthorID: query.Get("author"),
			Sort:     sort,
		}

		if liked, _ := strconv.ParseBool(query.Get("liked")); liked {
			if !isAuthenticated(r) {
				respondMessage(w, r, http.StatusUnauthorized, "Authentication required")

				return
			}

			params.LikedBy = authcontext.ViewerID(r.Context())
		}

		list, err := h.eggsSvc.ListEggs(r.Context(), params)
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, list)
	})
}

func (h *Handler) HandleGetEgg() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		egg, err := h.eggsSvc.GetEgg(r.Context(), r.PathValue("eggId"))
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, egg)
	})
}

func (h *Handler) HandleCreateEgg() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := h.readEggPayload(w, r)
		if err != nil {
			respondError(w, r, err)

			return
		}

		defer payload.close(r)

		req := eggs.CreateEggRequest{
			AuthorID:    authcontext.ViewerID(r.Context()),
			Title:       deref(payload.Title),
			Description: deref(payload.Description),
			Album:       deref(payload.Album),
			MediaType:   deref(payload.MediaType),
			ClueType:    deref(payload.ClueType),
			VideoURL:    deref(payload.VideoURL),
			Image:       payload.Image,
			Video:       payload.Video,
		}

		if payload.ImageURLs != nil {
			req.ImageURLs = *payload.ImageURLs
		}

		egg, err := h.eggsSvc.CreateEgg(r.Context(), req)
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusCreated, egg)
	})
}

func (h *Handler) HandleUpdateEgg() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := h.readEggPayload(w, r)
		if err != nil {
			respondError(w, r, err)

			return
		}

		defer payload.close(r)

		egg, err := h.eggsSvc.UpdateEgg(r.Context(), eggs.UpdateEggRequest{
			ID:          r.PathValue("eggId"),
			ActorID:     authcontext.ViewerID(r.Context()),
			Title:       payload.Title,
			Description: payload.Description,
			Album:       payload.Album,
			MediaType:   payload.MediaType,
			ClueType:    payload.ClueType,
			ImageURLs:   payload.ImageURLs,
			VideoURL:    payload.VideoURL,
			Image:       payload.Image,
			Video:       payload.Video,
			RemoveImage: payload.RemoveImage,
			RemoveVideo: payload.RemoveVideo,
		})
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, egg)
	})
}

func (h *Handler) HandleDeleteEgg() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h.eggsSvc.DeleteEgg(r.Context(), r.PathValue("eggId"), authcontext.ViewerID(r.Context()))
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, map[string]any{"success": true, "message": "Easter egg deleted"})
	})
}

func (h *Handler) HandleUpvote() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		egg, err := h.eggsSvc.GetEgg(r.Context(), r.PathValue("eggId"))
		if err != nil {
			respondError(w, r, err)

			return
		}

		result, err := h.likesSvc.Toggle(r.Context(), likes.TargetTypeEgg, egg.ID, authcontext.ViewerID(r.Context()))
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, map[string]any{
			"success":       true,
			"upvotes_count": result.Count,
			"action":        result.Action,
			"liked":         result.Liked,
		})
	})
}

func (h *Handler) HandleLikeStatus() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		egg, err := h.eggsSvc.GetEgg(r.Context(), r.PathValue("eggId"))
		if err != nil {
			respondError(w, r, err)

			return
		}

		liked, err := h.likesSvc.Liked(r.Context(), likes.TargetTypeEgg, egg.ID, authcontext.ViewerID(r.Context()))
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, map[string]any{
			"liked":         liked,
			"upvotes_count": egg.UpvotesCount,
		})
	})
}

func (h *Handler) HandleUpvoteCount() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		egg, err := h.eggsSvc.GetEgg(r.Context(), r.PathValue("eggId"))
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, map[string]int{"upvotes_count": egg.UpvotesCount})
	})
}

func (h *Handler) HandleMyLikes() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids, err := h.likesSvc.LikedTargetIDs(r.Context(), likes.TargetTypeEgg, authcontext.ViewerID(r.Context()))
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, map[string][]string{"easter_egg_ids": ids})
	})
}
