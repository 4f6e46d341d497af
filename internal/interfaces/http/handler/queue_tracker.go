package handler

import (
	"context"

	appbulk "github.com/UnFik/api-saku-tagihan/internal/application/bulk"
	"github.com/UnFik/api-saku-tagihan/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TrackerReader reads bulk operation progress
type TrackerReader interface {
	List(ctx context.Context, q appbulk.ListTrackersQuery) (*appbulk.TrackerList, error)
	Get(ctx context.Context, id uuid.UUID) (*appbulk.TrackerView, error)
}

// QueueTrackerHandler exposes queue tracker progress
type QueueTrackerHandler struct {
	BaseHandler
	trackers TrackerReader
}

// NewQueueTrackerHandler creates a new QueueTrackerHandler
func NewQueueTrackerHandler(trackers TrackerReader) *QueueTrackerHandler {
	return &QueueTrackerHandler{trackers: trackers}
}

// RegisterRoutes mounts the tracker endpoints on rg
func (h *QueueTrackerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	trackers := rg.Group("/queue-trackers")
	trackers.GET("", h.List)
	trackers.GET("/:id", h.Get)
}

// List returns trackers newest first, filtered by status and creator
func (h *QueueTrackerHandler) List(c *gin.Context) {
	var q appbulk.ListTrackersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	list, err := h.trackers.List(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, list.Items, list.TotalCount, list.Page, list.PageSize)
}

// Get returns one tracker with its progress
func (h *QueueTrackerHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid queue tracker id")
		return
	}

	tracker, err := h.trackers.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tracker)
}
