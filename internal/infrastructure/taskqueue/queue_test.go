package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		Concurrency: 5,
		MaxBacklog:  200,
		MaxRetries:  3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
	}
}

func startQueue(t *testing.T, cfg Config, opts ...Option) *Queue {
	t.Helper()
	q, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q
}

func waitDrain(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, q.AwaitDrain(ctx))
}

type countingObserver struct {
	retries   atomic.Int32
	exhausted atomic.Int32
}

func (o *countingObserver) RecordRetry(context.Context)     { o.retries.Add(1) }
func (o *countingObserver) RecordExhausted(context.Context) { o.exhausted.Add(1) }

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []Config{
		{Concurrency: 0, MaxBacklog: 1},
		{Concurrency: 1, MaxBacklog: 0},
		{Concurrency: 1, MaxBacklog: 1, MaxRetries: -1},
		{Concurrency: 1, MaxBacklog: 1, BaseDelay: time.Second, MaxDelay: time.Millisecond},
	}
	for _, cfg := range bad {
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func TestQueue_Backoff(t *testing.T) {
	q, err := New(Config{Concurrency: 1, MaxBacklog: 1, MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, time.Second, q.backoff(0))
	assert.Equal(t, 2*time.Second, q.backoff(1))
	assert.Equal(t, 4*time.Second, q.backoff(2))
	assert.Equal(t, 5*time.Second, q.backoff(3))
	assert.Equal(t, 5*time.Second, q.backoff(10))
}

func TestQueue_ConcurrencyCeiling(t *testing.T) {
	q := startQueue(t, fastConfig())

	var running, peak atomic.Int32
	for i := 0; i < 20; i++ {
		err := q.Submit(context.Background(), Unit{
			Key: "u",
			Run: func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	waitDrain(t, q)
	assert.LessOrEqual(t, peak.Load(), int32(5))
	assert.Equal(t, int64(20), q.Stats().Succeeded)
}

func TestQueue_RetriesWithGrowingDelay(t *testing.T) {
	cfg := fastConfig()
	cfg.BaseDelay = 10 * time.Millisecond
	cfg.MaxDelay = time.Second
	obs := &countingObserver{}
	q := startQueue(t, cfg, WithObserver(obs))

	var mu sync.Mutex
	var attempts []time.Time
	var outcome Outcome
	done := make(chan struct{})

	require.NoError(t, q.Submit(context.Background(), Unit{
		Key: "always-fails",
		Run: func(context.Context) error {
			mu.Lock()
			attempts = append(attempts, time.Now())
			mu.Unlock()
			return errors.New("upstream down")
		},
		OnResult: func(o Outcome) {
			outcome = o
			close(done)
		},
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("unit never resolved")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, 4)
	assert.GreaterOrEqual(t, attempts[1].Sub(attempts[0]), 10*time.Millisecond)
	assert.GreaterOrEqual(t, attempts[2].Sub(attempts[1]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, attempts[3].Sub(attempts[2]), 40*time.Millisecond)

	assert.Equal(t, 4, outcome.Attempts)
	assert.ErrorIs(t, outcome.Err, ErrRetryExhausted)
	assert.Equal(t, shared.CodeRetryExhausted, shared.ErrorCode(outcome.Err))
	assert.Contains(t, outcome.Err.Error(), "upstream down")
	assert.Equal(t, int32(3), obs.retries.Load())
	assert.Equal(t, int32(1), obs.exhausted.Load())
}

func TestQueue_SucceedsOnRetry(t *testing.T) {
	q := startQueue(t, fastConfig())

	var calls atomic.Int32
	results := make(chan Outcome, 1)
	require.NoError(t, q.Submit(context.Background(), Unit{
		Key: "flaky",
		Run: func(context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("timeout")
			}
			return nil
		},
		OnResult: func(o Outcome) { results <- o },
	}))

	o := <-results
	assert.True(t, o.Succeeded())
	assert.Equal(t, 3, o.Attempts)
}

func TestQueue_PermanentSkipsRetries(t *testing.T) {
	q := startQueue(t, fastConfig())

	conflict := shared.Conflict("Bill %s already confirmed", "2024001")
	var calls atomic.Int32
	results := make(chan Outcome, 1)
	require.NoError(t, q.Submit(context.Background(), Unit{
		Key: "2024001",
		Run: func(context.Context) error {
			calls.Add(1)
			return Permanent(conflict)
		},
		OnResult: func(o Outcome) { results <- o },
	}))

	o := <-results
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, o.Attempts)
	assert.True(t, shared.IsConflict(o.Err))
	assert.NotErrorIs(t, o.Err, ErrRetryExhausted)
	assert.Nil(t, Permanent(nil))
}

func TestQueue_RecoversPanics(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 0
	q := startQueue(t, cfg)

	results := make(chan Outcome, 1)
	require.NoError(t, q.Submit(context.Background(), Unit{
		Key:      "boom",
		Run:      func(context.Context) error { panic("nil map") },
		OnResult: func(o Outcome) { results <- o },
	}))

	o := <-results
	require.Error(t, o.Err)
	assert.Contains(t, o.Err.Error(), "panicked")

	// The worker survived.
	require.NoError(t, q.Submit(context.Background(), Unit{
		Key:      "after",
		Run:      func(context.Context) error { return nil },
		OnResult: func(o Outcome) { results <- o },
	}))
	assert.True(t, (<-results).Succeeded())
}

func TestQueue_Backpressure(t *testing.T) {
	q := startQueue(t, Config{Concurrency: 1, MaxBacklog: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := Unit{Key: "blocker", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	noop := Unit{Key: "noop", Run: func(context.Context) error { return nil }}

	require.NoError(t, q.Submit(context.Background(), blocker))
	<-started
	require.NoError(t, q.Submit(context.Background(), noop))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Submit(ctx, noop)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(2), q.Stats().InFlight)

	close(release)
	waitDrain(t, q)
	assert.Equal(t, int64(2), q.Stats().Succeeded)
}

func TestQueue_ShutdownDrains(t *testing.T) {
	q, err := New(fastConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, q.Submit(context.Background(), Unit{Key: "early", Run: func(context.Context) error { return nil }}), ErrQueueNotStarted)
	require.NoError(t, q.Start(context.Background()))

	var finished atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Submit(context.Background(), Unit{
			Key: "slow",
			Run: func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				finished.Add(1)
				return ctx.Err()
			},
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))
	assert.Equal(t, int32(10), finished.Load())

	err = q.Submit(context.Background(), Unit{Key: "late", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.NoError(t, q.Shutdown(ctx))
}

func TestQueue_RetryDueAfterShutdownFails(t *testing.T) {
	q, err := New(Config{Concurrency: 1, MaxBacklog: 4, MaxRetries: 1, BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, q.Start(context.Background()))

	var attempts atomic.Int32
	outcomes := make(chan Outcome, 1)
	require.NoError(t, q.Submit(context.Background(), Unit{
		Key: "2024002",
		Run: func(context.Context) error {
			attempts.Add(1)
			return errors.New("jurnal 502")
		},
		OnResult: func(o Outcome) { outcomes <- o },
	}))
	require.Eventually(t, func() bool { return attempts.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case o := <-outcomes:
		assert.ErrorIs(t, o.Err, ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("retry due after shutdown never reported an outcome")
	}
	assert.Equal(t, int32(1), attempts.Load())
	assert.Zero(t, q.Stats().Backlog)
	waitDrain(t, q)
}

func TestQueue_AwaitDrainWhenIdle(t *testing.T) {
	q := startQueue(t, fastConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, q.AwaitDrain(ctx))
	assert.Equal(t, Stats{Workers: 5}, q.Stats())
}

func TestQueue_BulkWithOneBadUnit(t *testing.T) {
	q := startQueue(t, fastConfig())

	var mu sync.Mutex
	outcomes := make(map[string]Outcome)
	var badAttempts atomic.Int32

	for i := 0; i < 120; i++ {
		key := fmt.Sprintf("bill-%03d", i)
		bad := i == 57
		require.NoError(t, q.Submit(context.Background(), Unit{
			Key: key,
			Run: func(context.Context) error {
				if bad {
					badAttempts.Add(1)
					return errors.New("journal rejected")
				}
				return nil
			},
			OnResult: func(o Outcome) {
				mu.Lock()
				outcomes[o.Key] = o
				mu.Unlock()
			},
		}))
	}

	waitDrain(t, q)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 120)

	var succeeded, failed int
	for _, o := range outcomes {
		if o.Succeeded() {
			succeeded++
			continue
		}
		failed++
		assert.Equal(t, 4, o.Attempts)
		assert.ErrorIs(t, o.Err, ErrRetryExhausted)
	}
	assert.Equal(t, 119, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, int32(4), badAttempts.Load())

	stats := q.Stats()
	assert.Equal(t, int64(119), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Zero(t, stats.InFlight)
}
