package bulk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QueueTrackerFilter defines the filters for querying trackers
type QueueTrackerFilter struct {
	Status    *QueueStatus // Filter by status
	CreatedBy string       // Filter by creator
	OrderBy   string       // Sort column; unknown columns fall back to start_date
	OrderDir  string       // ASC or DESC (default)
}

// QueueTrackerListResult represents a paginated list of trackers
type QueueTrackerListResult struct {
	Items      []*QueueTracker
	TotalCount int64
	Page       int
	PageSize   int
}

// QueueTrackerRepository defines the interface for tracker persistence
type QueueTrackerRepository interface {
	// Create inserts a new tracker
	Create(ctx context.Context, tracker *QueueTracker) error

	// FindByID finds a tracker by ID
	FindByID(ctx context.Context, id uuid.UUID) (*QueueTracker, error)

	// FindAll returns trackers with pagination and filtering, newest first unless
	// the filter asks for another order
	FindAll(ctx context.Context, filter QueueTrackerFilter, page, pageSize int) (*QueueTrackerListResult, error)

	// Increment adds to the counters in place at the storage layer.
	// Implementations must not read-modify-write.
	Increment(ctx context.Context, id uuid.UUID, success, failed int) error

	// Finalize sets a terminal status and end date, only if the tracker is not terminal yet.
	// description is left unchanged when nil. Returns shared.ErrInvalidState when the tracker
	// was already terminal.
	Finalize(ctx context.Context, id uuid.UUID, status QueueStatus, description *string, endDate time.Time) error

	// FindStale finds non-terminal trackers whose last update is older than before
	FindStale(ctx context.Context, before time.Time) ([]*QueueTracker, error)
}
