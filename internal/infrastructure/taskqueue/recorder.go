package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/bulk"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultFlushEvery is how many outcomes are batched into one counter update
const DefaultFlushEvery = 10

const (
	defaultCloseAttempts = 5
	defaultCloseBackoff  = 200 * time.Millisecond
)

// TrackerStore is the part of bulk.QueueTrackerRepository the recorder writes to
type TrackerStore interface {
	Increment(ctx context.Context, id uuid.UUID, success, failed int) error
	Finalize(ctx context.Context, id uuid.UUID, status bulk.QueueStatus, description *string, endDate time.Time) error
}

// TrackerRecorder folds unit outcomes of one batch into its queue tracker.
// Counter updates are flushed every flushEvery outcomes; Close flushes the
// remainder and finalizes the tracker exactly once.
type TrackerRecorder struct {
	store       TrackerStore
	trackerID   uuid.UUID
	total       int
	description string
	flushEvery  int
	logger      *zap.Logger

	closeAttempts int
	closeBackoff  time.Duration

	flushMu sync.Mutex // held across a whole flush so Close sees every write land

	mu             sync.Mutex
	pendingSuccess int
	pendingFailed  int
	succeeded      int
	failed         int
	complete       chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewTrackerRecorder creates a recorder for tracker. flushEvery <= 0 uses DefaultFlushEvery.
func NewTrackerRecorder(store TrackerStore, tracker *bulk.QueueTracker, flushEvery int, logger *zap.Logger) *TrackerRecorder {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackerRecorder{
		store:       store,
		trackerID:   tracker.ID,
		total:       tracker.TotalData,
		description: tracker.Description,
		flushEvery:  flushEvery,
		logger:      logger.With(zap.String("queue_id", tracker.ID.String())),
		complete:    make(chan struct{}),

		closeAttempts: defaultCloseAttempts,
		closeBackoff:  defaultCloseBackoff,
	}
}

// Record adds one outcome. It is safe to call from many workers.
func (r *TrackerRecorder) Record(ctx context.Context, outcome Outcome) {
	r.mu.Lock()
	if outcome.Succeeded() {
		r.succeeded++
		r.pendingSuccess++
	} else {
		r.failed++
		r.pendingFailed++
	}
	last := r.succeeded+r.failed == r.total
	flush := r.pendingSuccess+r.pendingFailed >= r.flushEvery
	r.mu.Unlock()

	if flush {
		if err := r.flush(ctx); err != nil {
			r.logger.Warn("Failed to flush tracker counters, keeping them for the next flush", zap.Error(err))
		}
	}
	if last {
		close(r.complete)
	}
}

// Done is closed once every unit of the batch has an outcome
func (r *TrackerRecorder) Done() <-chan struct{} {
	return r.complete
}

// Counts returns the outcomes recorded so far
func (r *TrackerRecorder) Counts() (succeeded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.succeeded, r.failed
}

// Wait blocks until every unit has an outcome, then closes the recorder
func (r *TrackerRecorder) Wait(ctx context.Context) error {
	select {
	case <-r.complete:
		return r.Close(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending counters and finalizes the tracker: COMPLETED when
// nothing failed, FAILED with a summary otherwise. When the final flush keeps
// failing the tracker is left PROCESSING for the stale tracker sweeper and
// the flush error is returned. Later calls return the first result.
func (r *TrackerRecorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		if err := r.finalFlush(ctx); err != nil {
			r.closeErr = fmt.Errorf("flush queue tracker %s: %w", r.trackerID, err)
			r.logger.Error("Tracker counters could not be stored, leaving the tracker unfinalized", zap.Error(err))
			return
		}

		succeeded, failed := r.Counts()
		status := bulk.QueueStatusCompleted
		var description *string
		if failed > 0 {
			status = bulk.QueueStatusFailed
			summary := bulk.FailureSummary(r.description, failed, r.total)
			description = &summary
		}

		r.closeErr = r.store.Finalize(ctx, r.trackerID, status, description, time.Now())
		if r.closeErr != nil {
			r.logger.Error("Failed to finalize queue tracker", zap.Error(r.closeErr))
			return
		}
		r.logger.Info("Queue tracker finalized",
			zap.String("status", string(status)),
			zap.Int("success", succeeded),
			zap.Int("failed", failed),
			zap.Int("total", r.total))
	})
	return r.closeErr
}

// finalFlush retries the last flush with doubling backoff, since finalizing
// requires every outcome to be stored
func (r *TrackerRecorder) finalFlush(ctx context.Context) error {
	backoff := r.closeBackoff
	var err error
	for attempt := 1; attempt <= r.closeAttempts; attempt++ {
		if err = r.flush(ctx); err == nil {
			return nil
		}
		if attempt == r.closeAttempts {
			break
		}
		r.logger.Warn("Final tracker flush failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last flush error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
		backoff *= 2
	}
	return err
}

// flush writes the pending counters. On failure they are put back so a
// later flush carries them.
func (r *TrackerRecorder) flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	success, failed := r.pendingSuccess, r.pendingFailed
	r.pendingSuccess, r.pendingFailed = 0, 0
	r.mu.Unlock()

	if success == 0 && failed == 0 {
		return nil
	}
	if err := r.store.Increment(ctx, r.trackerID, success, failed); err != nil {
		r.mu.Lock()
		r.pendingSuccess += success
		r.pendingFailed += failed
		r.mu.Unlock()
		return err
	}
	return nil
}
