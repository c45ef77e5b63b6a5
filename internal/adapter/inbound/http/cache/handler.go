package cachehttp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uniedit/sitecache/internal/domain/cache"
	apperrors "github.com/uniedit/sitecache/internal/shared/errors"
)

// Handler handles cache admin HTTP requests.
type Handler struct {
	manager *cache.Manager
	now     func() time.Time
}

// NewHandler creates a new cache handler.
func NewHandler(manager *cache.Manager) *Handler {
	return &Handler{manager: manager, now: time.Now}
}

// RegisterRoutes registers cache routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, siteMiddleware gin.HandlerFunc) {
	cacheGroup := r.Group("/cache")
	if siteMiddleware != nil {
		cacheGroup.Use(siteMiddleware)
	}
	{
		cacheGroup.GET("/items", h.SearchItems)
		cacheGroup.GET("/items/:id", h.GetItem)
		cacheGroup.PUT("/items/:id", h.PutItem)
		cacheGroup.DELETE("/items/:id", h.DeleteItem)
		cacheGroup.POST("/items/delete", h.DeleteItems)

		cacheGroup.DELETE("/tags/:tag", h.DeleteTag)
	}
}

// PutItem stores an item for the caller's site.
func (h *Handler) PutItem(c *gin.Context) {
	var req PutItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(err.Error()))
		return
	}

	values := cache.ItemValues{
		ID:    c.Param("id"),
		Value: []byte(req.Value),
		Tags:  req.Tags,
	}
	switch {
	case req.TTLSeconds > 0:
		expireAt := h.now().Add(time.Duration(req.TTLSeconds) * time.Second)
		values.ExpireAt = &expireAt
	case req.ExpireAt != nil:
		values.ExpireAt = req.ExpireAt
	}

	ctx := c.Request.Context()
	item, err := h.manager.CreateItem(ctx, values)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.manager.SaveItem(ctx, item); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toItemResponse(item))
}

// GetItem returns a single item.
func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.manager.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toItemResponse(item))
}

// SearchItems answers enumeration requests. Enumeration is not supported by
// the cache, so the result is always empty.
func (h *Handler) SearchItems(c *gin.Context) {
	criteria := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			criteria[key] = values[0]
		}
	}

	items, total, err := h.manager.SearchItems(c.Request.Context(), criteria)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := &SearchResponse{
		Items:  make([]*ItemResponse, 0, len(items)),
		Total:  total,
		Notice: apperrors.ErrUnsupportedOperation.Error(),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, toItemResponse(item))
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteItem removes a single item. Removing an absent item succeeds.
func (h *Handler) DeleteItem(c *gin.Context) {
	if err := h.manager.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteItems removes a list of items.
func (h *Handler) DeleteItems(c *gin.Context) {
	var req DeleteItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(err.Error()))
		return
	}

	if err := h.manager.DeleteItems(c.Request.Context(), req.IDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &DeleteItemsResponse{Deleted: len(req.IDs)})
}

// DeleteTag removes every item carrying the tag.
func (h *Handler) DeleteTag(c *gin.Context) {
	if err := h.manager.DeleteByTag(c.Request.Context(), c.Param("tag")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, err error) {
	appErr := apperrors.FromCacheError(err)
	_ = c.Error(err)
	c.JSON(appErr.StatusCode, appErr.ToResponse())
}
