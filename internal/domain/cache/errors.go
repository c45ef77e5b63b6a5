package cache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by the engine when an entry is absent or expired.
	ErrNotFound = errors.New("cache entry not found")

	// ErrItemNotFound is matched by every ItemNotFoundError.
	ErrItemNotFound = errors.New("cache item not found")

	// ErrTypeMismatch is returned when a record is not a cache item.
	ErrTypeMismatch = errors.New("object is not a cache item")

	// ErrTenantMismatch is returned when saving an item owned by another site.
	ErrTenantMismatch = errors.New("cache item belongs to another site")

	// ErrInvalidID is returned for an empty item ID.
	ErrInvalidID = errors.New("cache item ID must not be empty")
)

// ItemNotFoundError carries the requested ID of a missing item.
type ItemNotFoundError struct {
	ID  string
	Err error
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item with ID %q not found", e.ID)
}

func (e *ItemNotFoundError) Unwrap() error {
	return e.Err
}

// Is reports ErrItemNotFound for every ItemNotFoundError.
func (e *ItemNotFoundError) Is(target error) bool {
	return target == ErrItemNotFound
}

// BatchDeleteError reports a DeleteMultiple interrupted by a backend failure.
// Deleted holds IDs confirmed removed; the state of Unknown IDs is undetermined.
type BatchDeleteError struct {
	Deleted []string
	Unknown []string
	Err     error
}

func (e *BatchDeleteError) Error() string {
	return fmt.Sprintf("delete %d items: %d confirmed, unknown [%s]: %v",
		len(e.Deleted)+len(e.Unknown), len(e.Deleted), strings.Join(e.Unknown, ", "), e.Err)
}

func (e *BatchDeleteError) Unwrap() error {
	return e.Err
}
