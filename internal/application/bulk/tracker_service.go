// Package bulk serves the progress of bulk operations to callers.
package bulk

import (
	"context"

	"github.com/UnFik/api-saku-tagihan/internal/domain/bulk"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListTrackersQuery filters and pages the tracker listing
type ListTrackersQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=PENDING PROCESSING COMPLETED FAILED"`
	CreatedBy string `form:"created_by" binding:"omitempty,max=255"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	SortBy    string `form:"sort_by" binding:"omitempty,max=32"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// TrackerView is a queue tracker as shown to callers
type TrackerView struct {
	*bulk.QueueTracker
	Progress float64 `json:"progress"`
}

// TrackerList is one page of trackers
type TrackerList struct {
	Items      []TrackerView `json:"items"`
	TotalCount int64         `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

// TrackerService reads queue trackers
type TrackerService struct {
	trackers bulk.QueueTrackerRepository
	logger   *zap.Logger
}

// NewTrackerService creates a new TrackerService
func NewTrackerService(trackers bulk.QueueTrackerRepository, logger *zap.Logger) *TrackerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackerService{trackers: trackers, logger: logger}
}

// List returns trackers, newest first unless SortBy says otherwise
func (s *TrackerService) List(ctx context.Context, q ListTrackersQuery) (*TrackerList, error) {
	var filter bulk.QueueTrackerFilter
	if q.Status != "" {
		status := bulk.QueueStatus(q.Status)
		if !status.IsValid() {
			return nil, shared.Validation("Invalid status: %q", q.Status)
		}
		filter.Status = &status
	}
	filter.CreatedBy = q.CreatedBy
	filter.OrderBy = q.SortBy
	filter.OrderDir = q.SortOrder

	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	result, err := s.trackers.FindAll(ctx, filter, q.Page, q.PageSize)
	if err != nil {
		return nil, err
	}

	items := make([]TrackerView, len(result.Items))
	for i, t := range result.Items {
		items[i] = view(t)
	}
	totalPages := int((result.TotalCount + int64(q.PageSize) - 1) / int64(q.PageSize))
	return &TrackerList{
		Items:      items,
		TotalCount: result.TotalCount,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	}, nil
}

// Get returns one tracker
func (s *TrackerService) Get(ctx context.Context, id uuid.UUID) (*TrackerView, error) {
	t, err := s.trackers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v := view(t)
	return &v, nil
}

func view(t *bulk.QueueTracker) TrackerView {
	var progress float64
	if t.TotalData > 0 {
		progress = float64(t.Resolved()) / float64(t.TotalData) * 100
	}
	return TrackerView{QueueTracker: t, Progress: progress}
}
