package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/swiftie-vault/eastereggs/auth"
	"github.com/swiftie-vault/eastereggs/discuss"
	"github.com/swiftie-vault/eastereggs/eggs"
	"github.com/swiftie-vault/eastereggs/likes"
	"github.com/swiftie-vault/eastereggs/media"
)

// RequestError is an error with the status code to answer it with.
type RequestError struct {
	StatusCode int
	Message    string
}

func (err RequestError) Error() string {
	return err.Message
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func respondMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, map[string]string{"error": message})
}

// respondError answers with the status the error maps to. Unknown errors are
// logged and hidden behind a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	respondMessage(w, r, status, message)
}

func errorStatus(err error) (int, string) {
	var (
		requestErr        RequestError
		maxBytesErr       *http.MaxBytesError
		alreadyExistsErr  *auth.UserAlreadyExistsError
		invalidUsername   *auth.InvalidUsernameError
		invalidPassword   *auth.InvalidPasswordError
		userNotFoundErr   *auth.UserNotFoundError
		eggNotFoundErr    eggs.EggNotFoundError
		notOwnerErr       eggs.NotOwnerError
		invalidFieldErr   eggs.InvalidFieldError
		invalidCatalogErr eggs.InvalidCatalogValueError
		invalidSortErr    eggs.InvalidSortError
		commentNotFound   discuss.CommentNotFoundError
		invalidComment    discuss.InvalidCommentError
		invalidTarget     likes.InvalidTargetTypeError
		unsupportedType   media.UnsupportedContentTypeError
	)

	switch {
	case errors.As(err, &requestErr):
		return requestErr.StatusCode, requestErr.Message
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", maxBytesErr.Limit)
	case errors.As(err, &alreadyExistsErr):
		return http.StatusConflict, "Username already exists"
	case errors.As(err, &invalidUsername):
		return http.StatusBadRequest, invalidUsername.Error()
	case errors.As(err, &invalidPassword):
		return http.StatusBadRequest, invalidPassword.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, auth.ErrCurrentUserNotFound):
		return http.StatusUnauthorized, "Authentication required"
	case errors.As(err, &userNotFoundErr):
		return http.StatusNotFound, "User profile not found"
	case errors.As(err, &eggNotFoundErr):
		return http.StatusNotFound, "Easter egg not found"
	case errors.As(err, &notOwnerErr):
		return http.StatusForbidden, "You can only change your own posts"
	case errors.As(err, &invalidFieldErr):
		return http.StatusBadRequest, invalidFieldErr.Error()
	case errors.As(err, &invalidCatalogErr):
		return http.StatusBadRequest, invalidCatalogErr.Error()
	case errors.As(err, &invalidSortErr):
		return http.StatusBadRequest, invalidSortErr.Error()
	case errors.As(err, &commentNotFound):
		return http.StatusNotFound, "Comment not found"
	case errors.As(err, &invalidComment):
		return http.StatusBadRequest, invalidComment.Error()
	case errors.As(err, &invalidTarget):
		return http.StatusBadRequest, invalidTarget.Error()
	case errors.As(err, &unsupportedType):
		return http.StatusBadRequest, unsupportedType.Error()
	case errors.Is(err, media.ErrStorageDisabled):
		return http.StatusServiceUnavailable, "Media storage is not configured"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// decodeValidate reads a JSON body into v and runs its validate tags.
func (h *Handler) decodeValidate(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		slog.DebugContext(r.Context(), "failed to decode request body", "error", err)

		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return maxBytesErr
		}

		return RequestError{StatusCode: http.StatusBadRequest, Message: "Body is invalid json"}
	}

	err = h.validate.Struct(v)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			return RequestError{
				StatusCode: http.StatusBadRequest,
				Message:    fmt.Sprintf("Field %s failed on %s", validationErrs[0].Field(), validationErrs[0].Tag()),
			}
		}

		return fmt.Errorf("failed to validate request body: %w", err)
	}

	return nil
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}

	return name
}
