package cachehttp

import (
	"time"

	"github.com/uniedit/sitecache/internal/domain/cache"
)

// PutItemRequest is the body of PUT /cache/items/:id.
// TTLSeconds takes precedence over ExpireAt.
type PutItemRequest struct {
	Value      string     `json:"value"`
	Tags       []string   `json:"tags"`
	TTLSeconds int64      `json:"ttl_seconds" binding:"gte=0"`
	ExpireAt   *time.Time `json:"expire_at"`
}

// DeleteItemsRequest is the body of POST /cache/items/delete.
type DeleteItemsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// ItemResponse is a cache item as returned to operators.
type ItemResponse struct {
	ID       string     `json:"id"`
	SiteID   string     `json:"site_id"`
	Value    string     `json:"value"`
	Tags     []string   `json:"tags"`
	ExpireAt *time.Time `json:"expire_at,omitempty"`
}

// SearchResponse is the result of GET /cache/items.
type SearchResponse struct {
	Items  []*ItemResponse `json:"items"`
	Total  int             `json:"total"`
	Notice string          `json:"notice,omitempty"`
}

// DeleteItemsResponse reports the number of IDs removed.
type DeleteItemsResponse struct {
	Deleted int `json:"deleted"`
}

func toItemResponse(item *cache.Item) *ItemResponse {
	return &ItemResponse{
		ID:       item.ID(),
		SiteID:   item.SiteID(),
		Value:    string(item.Value()),
		Tags:     item.Tags(),
		ExpireAt: item.ExpireAt(),
	}
}
