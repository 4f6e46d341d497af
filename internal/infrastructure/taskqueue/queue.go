// Package taskqueue is an in-process bounded worker pool with retry, backoff,
// backpressure and drain-on-shutdown.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config holds task queue configuration
type Config struct {
	Concurrency int           // worker count
	MaxBacklog  int           // queued units before Submit blocks
	MaxRetries  int           // retries after the first attempt
	BaseDelay   time.Duration // delay before the first retry, doubled for each further retry
	MaxDelay    time.Duration // cap on a single retry delay
}

// DefaultConfig returns default task queue configuration
func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		MaxBacklog:  1000,
		MaxRetries:  3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch {
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	case c.MaxBacklog <= 0:
		return fmt.Errorf("%w: max backlog must be positive", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	case c.BaseDelay < 0 || c.MaxDelay < c.BaseDelay:
		return fmt.Errorf("%w: delays must satisfy 0 <= base <= max", ErrInvalidConfig)
	}
	return nil
}

// Unit is one piece of work
type Unit struct {
	Key      string
	Run      func(ctx context.Context) error
	OnResult func(Outcome) // optional, called once with the final outcome
}

// Outcome is the final result of a unit. Err is nil on success.
type Outcome struct {
	Key      string
	Attempts int
	Err      error
}

// Succeeded reports whether the unit eventually ran without error
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Stats is a point in time view of the queue
type Stats struct {
	Workers   int
	Backlog   int   // units waiting for a worker
	InFlight  int64 // submitted units without a final outcome, including delayed retries
	Succeeded int64
	Failed    int64
}

// Observer receives retry events. *telemetry.PipelineMetrics satisfies it.
type Observer interface {
	RecordRetry(ctx context.Context)
	RecordExhausted(ctx context.Context)
}

// Option configures a Queue
type Option func(*Queue)

// WithLogger sets the queue logger
func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithObserver sets the retry observer
func WithObserver(o Observer) Option {
	return func(q *Queue) {
		q.observer = o
	}
}

type task struct {
	unit    Unit
	attempt int // attempts already made
}

// Queue runs units on a fixed number of workers
type Queue struct {
	config   Config
	logger   *zap.Logger
	observer Observer

	backlog chan *task
	room    chan struct{} // signalled when a worker takes a task off the backlog
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
	closed    bool
	stopped   bool // set before stop is closed; no task enters the backlog afterwards
	pending   int64
	drained   chan struct{}

	succeeded atomic.Int64
	failed    atomic.Int64
}

// New creates a task queue
func New(config Config, opts ...Option) (*Queue, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	q := &Queue{
		config:  config,
		logger:  zap.NewNop(),
		backlog: make(chan *task, config.MaxBacklog),
		room:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	close(q.drained)
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Start launches the workers. Units run with ctx's values but are not
// cancelled with it; Shutdown decides when in-flight work is abandoned.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.isRunning {
		return nil
	}
	q.isRunning = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel

	for i := 0; i < q.config.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(runCtx, i)
	}

	q.logger.Info("Task queue started",
		zap.Int("workers", q.config.Concurrency),
		zap.Int("max_backlog", q.config.MaxBacklog),
		zap.Int("max_retries", q.config.MaxRetries),
	)
	return nil
}

// Submit enqueues a unit. It blocks while the backlog is full until space
// frees up or ctx is done.
func (q *Queue) Submit(ctx context.Context, unit Unit) error {
	if unit.Run == nil {
		return fmt.Errorf("%w: unit %q has no Run func", ErrInvalidConfig, unit.Key)
	}

	q.mu.Lock()
	switch {
	case q.closed:
		q.mu.Unlock()
		return ErrQueueClosed
	case !q.isRunning:
		q.mu.Unlock()
		return ErrQueueNotStarted
	}
	q.addPendingLocked()
	q.mu.Unlock()

	if err := q.enqueue(ctx, &task{unit: unit}); err != nil {
		q.donePending()
		return err
	}
	return nil
}

// enqueuePoll bounds how long a blocked enqueue sleeps when a room signal
// went to another waiter
const enqueuePoll = 20 * time.Millisecond

// enqueue puts t on the backlog, waiting while it is full. Sends happen under
// q.mu so that once stopped is set no task can reach the backlog unseen by
// Shutdown's final sweep.
func (q *Queue) enqueue(ctx context.Context, t *task) error {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		select {
		case q.backlog <- t:
			q.mu.Unlock()
			return nil
		default:
		}
		q.mu.Unlock()

		timer := time.NewTimer(enqueuePoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-q.stop:
		case <-q.room:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// AwaitDrain blocks until no unit is queued, running or waiting for a retry.
// It returns immediately when the queue is already idle.
func (q *Queue) AwaitDrain(ctx context.Context) error {
	q.mu.Lock()
	ch := q.drained
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting units, waits for every accepted unit to finish,
// then stops the workers. If ctx expires first, in-flight units are cancelled.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	running := q.isRunning
	q.mu.Unlock()

	if !running {
		return nil
	}

	q.logger.Info("Task queue draining", zap.Int64("in_flight", q.Stats().InFlight))

	drainErr := q.AwaitDrain(ctx)
	if drainErr != nil {
		q.logger.Warn("Task queue drain timed out, cancelling in-flight units", zap.Error(drainErr))
	}
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	close(q.stop)
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		q.failLeftovers()
		return ctx.Err()
	}
	q.failLeftovers()

	if drainErr != nil {
		return drainErr
	}
	q.logger.Info("Task queue stopped gracefully")
	return nil
}

// Stats returns a snapshot of the queue
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	pending := q.pending
	q.mu.Unlock()
	return Stats{
		Workers:   q.config.Concurrency,
		Backlog:   len(q.backlog),
		InFlight:  pending,
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
	}
}

// Backlog returns the number of units waiting for a worker
func (q *Queue) Backlog() int64 {
	return int64(len(q.backlog))
}

func (q *Queue) addPendingLocked() {
	if q.pending == 0 {
		q.drained = make(chan struct{})
	}
	q.pending++
}

func (q *Queue) donePending() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending == 0 {
		close(q.drained)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case t := <-q.backlog:
			select {
			case q.room <- struct{}{}:
			default:
			}
			q.process(ctx, t, id)
		}
	}
}

func (q *Queue) process(ctx context.Context, t *task, workerID int) {
	t.attempt++
	err := runSafely(ctx, t.unit)
	if err == nil {
		q.succeeded.Add(1)
		q.finish(t, nil)
		return
	}

	if IsPermanent(err) {
		q.logger.Warn("Unit failed permanently",
			zap.Int("worker_id", workerID),
			zap.String("key", t.unit.Key),
			zap.Int("attempt", t.attempt),
			zap.Error(err))
		q.failed.Add(1)
		q.finish(t, errors.Unwrap(err))
		return
	}

	if t.attempt > q.config.MaxRetries || ctx.Err() != nil {
		q.logger.Error("Unit exhausted its retries",
			zap.String("key", t.unit.Key),
			zap.Int("attempts", t.attempt),
			zap.Error(err))
		if q.observer != nil {
			q.observer.RecordExhausted(ctx)
		}
		q.failed.Add(1)
		q.finish(t, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, t.attempt, err))
		return
	}

	delay := q.backoff(t.attempt - 1)
	q.logger.Info("Unit scheduled for retry",
		zap.String("key", t.unit.Key),
		zap.Int("attempt", t.attempt),
		zap.Duration("delay", delay),
		zap.Error(err))
	if q.observer != nil {
		q.observer.RecordRetry(ctx)
	}
	time.AfterFunc(delay, func() {
		if enqErr := q.enqueue(context.Background(), t); enqErr != nil {
			q.failed.Add(1)
			q.finish(t, fmt.Errorf("%w before retry: %w", ErrQueueClosed, err))
		}
	})
}

// failLeftovers fails tasks still on the backlog after the workers stopped
func (q *Queue) failLeftovers() {
	for {
		select {
		case t := <-q.backlog:
			q.failed.Add(1)
			q.finish(t, fmt.Errorf("%w before the unit ran", ErrQueueClosed))
		default:
			return
		}
	}
}

// backoff returns BaseDelay * 2^retry, capped at MaxDelay
func (q *Queue) backoff(retry int) time.Duration {
	delay := q.config.BaseDelay
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= q.config.MaxDelay {
			return q.config.MaxDelay
		}
	}
	if delay > q.config.MaxDelay {
		return q.config.MaxDelay
	}
	return delay
}

func (q *Queue) finish(t *task, err error) {
	if t.unit.OnResult != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("OnResult panicked", zap.String("key", t.unit.Key), zap.Any("panic", r))
				}
			}()
			t.unit.OnResult(Outcome{Key: t.unit.Key, Attempts: t.attempt, Err: err})
		}()
	}
	q.donePending()
}

// runSafely runs the unit, turning a panic into an error
func runSafely(ctx context.Context, unit Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit %s panicked: %v", unit.Key, r)
		}
	}()
	return unit.Run(ctx)
}
