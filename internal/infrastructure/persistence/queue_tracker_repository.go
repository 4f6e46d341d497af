package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/bulk"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var terminalQueueStatuses = []bulk.QueueStatus{bulk.QueueStatusCompleted, bulk.QueueStatusFailed}

// GormQueueTrackerRepository implements bulk.QueueTrackerRepository using GORM
type GormQueueTrackerRepository struct {
	db *gorm.DB
}

// NewGormQueueTrackerRepository creates a new GormQueueTrackerRepository
func NewGormQueueTrackerRepository(db *gorm.DB) *GormQueueTrackerRepository {
	return &GormQueueTrackerRepository{db: db}
}

// Create inserts a new tracker
func (r *GormQueueTrackerRepository) Create(ctx context.Context, tracker *bulk.QueueTracker) error {
	return r.db.WithContext(ctx).Create(models.QueueTrackerModelFromDomain(tracker)).Error
}

// FindByID finds a tracker by ID
func (r *GormQueueTrackerRepository) FindByID(ctx context.Context, id uuid.UUID) (*bulk.QueueTracker, error) {
	var model models.QueueTrackerModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NotFound("Queue tracker %s not found", id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns trackers with pagination and filtering, newest first by default
func (r *GormQueueTrackerRepository) FindAll(
	ctx context.Context,
	filter bulk.QueueTrackerFilter,
	page, pageSize int,
) (*bulk.QueueTrackerListResult, error) {
	query := r.db.WithContext(ctx).Model(&models.QueueTrackerModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CreatedBy != "" {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, err
	}

	if page > 0 && pageSize > 0 {
		query = query.Offset((page - 1) * pageSize).Limit(pageSize)
	}

	var rows []models.QueueTrackerModel
	if err := query.Order(orderClause(filter.OrderBy, filter.OrderDir, QueueTrackerSortFields, "start_date")).Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]*bulk.QueueTracker, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return &bulk.QueueTrackerListResult{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Increment adds to the counters with a single UPDATE so concurrent flushes
// never lose updates.
func (r *GormQueueTrackerRepository) Increment(ctx context.Context, id uuid.UUID, success, failed int) error {
	if success < 0 || failed < 0 {
		return shared.Validation("Counter increments cannot be negative")
	}
	if success == 0 && failed == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&models.QueueTrackerModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"success_count": gorm.Expr("success_count + ?", success),
			"failed_count":  gorm.Expr("failed_count + ?", failed),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NotFound("Queue tracker %s not found", id)
	}
	return nil
}

// Finalize moves a non-terminal tracker to a terminal status
func (r *GormQueueTrackerRepository) Finalize(
	ctx context.Context,
	id uuid.UUID,
	status bulk.QueueStatus,
	description *string,
	endDate time.Time,
) error {
	if !status.IsTerminal() {
		return shared.Validation("Status %s is not terminal", status)
	}

	updates := map[string]any{
		"status":     status,
		"end_date":   endDate,
		"updated_at": time.Now(),
	}
	if description != nil {
		updates["description"] = *description
	}

	result := r.db.WithContext(ctx).Model(&models.QueueTrackerModel{}).
		Where("id = ? AND status NOT IN ?", id, terminalQueueStatuses).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return shared.InvalidState("Queue tracker %s is already finalized", id)
}

// FindStale finds non-terminal trackers not updated since before
func (r *GormQueueTrackerRepository) FindStale(ctx context.Context, before time.Time) ([]*bulk.QueueTracker, error) {
	var rows []models.QueueTrackerModel
	if err := r.db.WithContext(ctx).
		Where("status NOT IN ? AND updated_at < ?", terminalQueueStatuses, before).
		Order("updated_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]*bulk.QueueTracker, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items, nil
}

// Compile-time interface compliance check
var _ bulk.QueueTrackerRepository = (*GormQueueTrackerRepository)(nil)
