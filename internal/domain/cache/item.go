package cache

import (
	"slices"
	"time"
)

// Record is the common capability of every managed item.
type Record interface {
	ID() string
	IsModified() bool
}

// Entity is the capability set a record must have to be saved in the cache.
type Entity interface {
	Record
	SiteID() string
	Value() []byte
	Tags() []string
	ExpireAt() *time.Time
	ClearModified()
}

// ItemValues holds the fields used to build an Item.
type ItemValues struct {
	ID       string
	Value    []byte
	Tags     []string
	ExpireAt *time.Time
	SiteID   string
}

// Item is a cache entry as seen by callers.
//
// Every setter marks the item modified; only a successful save clears the flag.
type Item struct {
	id       string
	siteID   string
	value    []byte
	tags     []string
	expireAt *time.Time
	modified bool
}

// NewItem creates a modified item from fresh input.
func NewItem(v ItemValues) *Item {
	item := newItem(v)
	item.modified = true
	return item
}

// newItem creates an unmodified item, as loaded from the backend.
func newItem(v ItemValues) *Item {
	item := &Item{
		id:     v.ID,
		siteID: v.SiteID,
		value:  v.Value,
		tags:   normalizeTags(v.Tags),
	}
	if v.ExpireAt != nil {
		t := *v.ExpireAt
		item.expireAt = &t
	}
	return item
}

func (i *Item) ID() string     { return i.id }
func (i *Item) SiteID() string { return i.siteID }
func (i *Item) Value() []byte  { return i.value }

// Tags returns a copy of the item's tags, sorted.
func (i *Item) Tags() []string { return slices.Clone(i.tags) }

// ExpireAt returns the expiry time, or nil when the item never expires.
func (i *Item) ExpireAt() *time.Time {
	if i.expireAt == nil {
		return nil
	}
	t := *i.expireAt
	return &t
}

func (i *Item) IsModified() bool { return i.modified }
func (i *Item) ClearModified()   { i.modified = false }

func (i *Item) SetID(id string) {
	i.id = id
	i.modified = true
}

func (i *Item) SetValue(value []byte) {
	i.value = value
	i.modified = true
}

func (i *Item) SetTags(tags []string) {
	i.tags = normalizeTags(tags)
	i.modified = true
}

// SetExpireAt sets the expiry time; nil removes it.
func (i *Item) SetExpireAt(t *time.Time) {
	if t == nil {
		i.expireAt = nil
	} else {
		v := *t
		i.expireAt = &v
	}
	i.modified = true
}

// normalizeTags drops empty and duplicate tags and sorts the rest.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

var _ Entity = (*Item)(nil)
