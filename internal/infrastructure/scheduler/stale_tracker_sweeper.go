package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/bulk"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// InterruptedReason is appended to the description of swept trackers
const InterruptedReason = "interrupted"

// LiveBatches reports which bulk batches are still running in this process
type LiveBatches interface {
	IsLive(id uuid.UUID) bool
}

// SweeperConfig holds configuration for the stale tracker sweeper
type SweeperConfig struct {
	// Schedule is a standard five-field cron spec
	Schedule string

	// StaleAfter is how long a tracker may go without updates before it is swept
	StaleAfter time.Duration

	// RunTimeout bounds one sweep
	RunTimeout time.Duration
}

// DefaultSweeperConfig returns the default sweeper configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Schedule:   "*/15 * * * *",
		StaleAfter: 2 * time.Hour,
		RunTimeout: time.Minute,
	}
}

// StaleTrackerSweeper finalizes queue trackers left PROCESSING by a batch that
// died with its process
type StaleTrackerSweeper struct {
	config   SweeperConfig
	trackers bulk.QueueTrackerRepository
	live     LiveBatches
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	isRunning bool
}

// NewStaleTrackerSweeper creates a new sweeper. live may be nil when no batches run in this process.
func NewStaleTrackerSweeper(
	config SweeperConfig,
	trackers bulk.QueueTrackerRepository,
	live LiveBatches,
	logger *zap.Logger,
) (*StaleTrackerSweeper, error) {
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, config.Schedule, err)
	}
	if config.StaleAfter <= 0 {
		return nil, fmt.Errorf("%w: stale_after must be positive", ErrInvalidConfig)
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultSweeperConfig().RunTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaleTrackerSweeper{
		config:   config,
		trackers: trackers,
		live:     live,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start schedules the sweep. Overlapping runs are skipped.
func (s *StaleTrackerSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	base := context.WithoutCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.config.Schedule, func() {
		runCtx, cancel := context.WithTimeout(base, s.config.RunTimeout)
		defer cancel()
		if _, err := s.Sweep(runCtx); err != nil {
			s.logger.Error("Stale tracker sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Start()

	s.cron = c
	s.isRunning = true
	s.logger.Info("Stale tracker sweeper started",
		zap.String("schedule", s.config.Schedule),
		zap.Duration("stale_after", s.config.StaleAfter))
	return nil
}

// Stop stops scheduling and waits for a running sweep
func (s *StaleTrackerSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	c := s.cron
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
		s.logger.Info("Stale tracker sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep finalizes every stale tracker not owned by a live batch as FAILED and
// returns how many were finalized
func (s *StaleTrackerSweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.trackers.FindStale(ctx, now.Add(-s.config.StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("find stale trackers: %w", err)
	}

	swept := 0
	for _, tracker := range stale {
		if s.live != nil && s.live.IsLive(tracker.ID) {
			continue
		}

		reason := fmt.Sprintf("%s (%s)", tracker.Description, InterruptedReason)
		err := s.trackers.Finalize(ctx, tracker.ID, bulk.QueueStatusFailed, &reason, now)
		switch {
		case err == nil:
			swept++
			s.logger.Warn("Stale queue tracker finalized",
				zap.String("queue_id", tracker.ID.String()),
				zap.Int("success", tracker.SuccessCount),
				zap.Int("failed", tracker.FailedCount),
				zap.Int("total", tracker.TotalData))
		case shared.ErrorCode(err) == shared.CodeInvalidState:
			// finished between the query and the update
		default:
			s.logger.Error("Failed to finalize stale tracker",
				zap.String("queue_id", tracker.ID.String()), zap.Error(err))
		}
	}
	return swept, nil
}
