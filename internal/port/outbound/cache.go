package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheMiss is returned by Get when the key is absent.
	ErrCacheMiss = errors.New("cache miss")

	// ErrBackendUnavailable is wrapped by every connectivity or protocol failure.
	ErrBackendUnavailable = errors.New("cache backend unavailable")
)

// CacheBackend is the physical key-value store behind the cache engine.
//
// Keys are opaque to the backend. Tag memberships are kept in both directions:
// a tag key lists entry keys, and an entry key lists the tag keys it belongs to.
// No cross-key atomicity is assumed.
type CacheBackend interface {
	// Get returns the stored value or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMultiple removes all keys.
	DeleteMultiple(ctx context.Context, keys []string) error

	// AddTagMembership records entryKey as a member of tagKey.
	AddTagMembership(ctx context.Context, tagKey, entryKey string) error

	// RemoveTagMembership drops entryKey from tagKey.
	RemoveTagMembership(ctx context.Context, tagKey, entryKey string) error

	// IDsForTag lists the entry keys tagged with tagKey.
	IDsForTag(ctx context.Context, tagKey string) ([]string, error)

	// TagsForID lists the tag keys entryKey belongs to.
	TagsForID(ctx context.Context, entryKey string) ([]string, error)

	// ClearTag drops the whole tag bucket.
	ClearTag(ctx context.Context, tagKey string) error

	// Close releases the physical connection.
	Close() error
}

// BackendError wraps a failure reported by a backend.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

// Unavailable wraps err as a BackendError.
func Unavailable(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is reports ErrBackendUnavailable for every BackendError.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}
