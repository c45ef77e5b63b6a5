package cache

import (
	"context"
	"fmt"

	"github.com/uniedit/sitecache/internal/port/outbound"
)

// TagIndex keeps the tag to entry relation inside the backend.
type TagIndex struct {
	backend outbound.CacheBackend
}

// NewTagIndex creates a tag index on top of backend.
func NewTagIndex(backend outbound.CacheBackend) *TagIndex {
	return &TagIndex{backend: backend}
}

// Attach adds id to every tag in tags.
func (x *TagIndex) Attach(ctx context.Context, ns namespace, id string, tags []string) error {
	entryKey := ns.entryKey(id)
	for _, tag := range tags {
		if err := x.backend.AddTagMembership(ctx, ns.tagKey(tag), entryKey); err != nil {
			return fmt.Errorf("tag %q: %w", tag, err)
		}
	}
	return nil
}

// Detach removes id from every tag it currently belongs to.
func (x *TagIndex) Detach(ctx context.Context, ns namespace, id string) error {
	entryKey := ns.entryKey(id)
	tagKeys, err := x.backend.TagsForID(ctx, entryKey)
	if err != nil {
		return fmt.Errorf("list tags of %q: %w", id, err)
	}
	for _, tagKey := range tagKeys {
		if err := x.backend.RemoveTagMembership(ctx, tagKey, entryKey); err != nil {
			return fmt.Errorf("untag %q: %w", id, err)
		}
	}
	return nil
}

// Members returns the IDs currently tagged with tag.
// IDs are resolved lazily and may reference entries that have since changed.
func (x *TagIndex) Members(ctx context.Context, ns namespace, tag string) ([]string, error) {
	keys, err := x.backend.IDsForTag(ctx, ns.tagKey(tag))
	if err != nil {
		return nil, fmt.Errorf("members of tag %q: %w", tag, err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if id, ok := ns.stripKey(key); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Clear drops the bucket of tag.
func (x *TagIndex) Clear(ctx context.Context, ns namespace, tag string) error {
	if err := x.backend.ClearTag(ctx, ns.tagKey(tag)); err != nil {
		return fmt.Errorf("clear tag %q: %w", tag, err)
	}
	return nil
}
