package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/uniedit/sitecache/internal/domain/cache"
	"github.com/uniedit/sitecache/internal/port/outbound"
	"github.com/uniedit/sitecache/internal/shared/tenant"
)

// Common error types.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrLibraryUnavailable is returned when a configured backend needs a
	// client library or driver that is not compiled into the binary.
	ErrLibraryUnavailable = errors.New("required client library not available")

	// ErrUnsupportedOperation marks operations the cache answers with an
	// empty result instead of an error, such as enumeration by criteria.
	ErrUnsupportedOperation = errors.New("operation not supported by cache backend")
)

// AppError represents an application error with HTTP status and error code.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"-"`
	Err        error          `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorResponse represents the JSON error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAppError creates a new application error.
func NewAppError(code string, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// BadRequest creates a bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}
}

// Unauthorized creates an error for a caller that failed authentication.
func Unauthorized(code, message string, err error) *AppError {
	if err == nil {
		err = ErrUnauthorized
	} else {
		err = fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        err,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ItemNotFound creates an error for a missing or expired cache item.
func ItemNotFound(id string, err error) *AppError {
	return &AppError{
		Code:       "ITEM_NOT_FOUND",
		Message:    fmt.Sprintf("item with ID %q not found", id),
		Details:    map[string]any{"id": id},
		StatusCode: http.StatusNotFound,
		Err:        err,
	}
}

// BackendUnavailable creates an error for a cache backend failure.
func BackendUnavailable(err error) *AppError {
	return &AppError{
		Code:       "BACKEND_UNAVAILABLE",
		Message:    "cache backend unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// FromCacheError maps cache errors to application errors.
// Errors that already are *AppError are returned unchanged.
func FromCacheError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var notFound *cache.ItemNotFoundError
	var batch *cache.BatchDeleteError

	switch {
	case errors.As(err, &notFound):
		return ItemNotFound(notFound.ID, err)
	case errors.As(err, &batch):
		e := BackendUnavailable(err)
		e.Details = map[string]any{
			"deleted": nonNil(batch.Deleted),
			"unknown": nonNil(batch.Unknown),
		}
		return e
	case errors.Is(err, cache.ErrNotFound):
		return NewAppError("ITEM_NOT_FOUND", "item not found", http.StatusNotFound, err)
	case errors.Is(err, cache.ErrTypeMismatch):
		return NewAppError("TYPE_MISMATCH", "object is not a cache item", http.StatusUnprocessableEntity, err)
	case errors.Is(err, cache.ErrTenantMismatch):
		return NewAppError("TENANT_MISMATCH", "item belongs to another site", http.StatusForbidden, err)
	case errors.Is(err, cache.ErrInvalidID):
		return NewAppError("INVALID_ID", "cache item ID must not be empty", http.StatusBadRequest, err)
	case errors.Is(err, tenant.ErrNoTenant):
		return NewAppError("SITE_REQUIRED", "site ID required", http.StatusBadRequest, err)
	case errors.Is(err, outbound.ErrBackendUnavailable):
		return BackendUnavailable(err)
	case errors.Is(err, ErrLibraryUnavailable):
		return NewAppError("LIBRARY_UNAVAILABLE", ErrLibraryUnavailable.Error(), http.StatusInternalServerError, err)
	default:
		return Internal("internal server error", err)
	}
}

// ToResponse converts an AppError to ErrorResponse.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
		},
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
