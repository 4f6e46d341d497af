package cache

import (
	"context"
	"sync"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
)

// InMemoryLock implements shared.ConfirmationLock with a map of expiry times.
// Locks only exclude callers inside this process.
type InMemoryLock struct {
	mu        sync.Mutex
	held      map[string]time.Time
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryLock creates an in-process lock and starts its cleanup loop
func NewInMemoryLock() *InMemoryLock {
	l := &InMemoryLock{
		held:     make(map[string]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop()

	return l
}

// Acquire takes the lock for key unless an unexpired holder exists
func (l *InMemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiresAt, ok := l.held[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

// Release drops the lock for key
func (l *InMemoryLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *InMemoryLock) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

func (l *InMemoryLock) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *InMemoryLock) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, expiresAt := range l.held {
		if !now.Before(expiresAt) {
			delete(l.held, key)
		}
	}
}

// Size returns the number of tracked locks, expired ones included until cleanup
func (l *InMemoryLock) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

var _ shared.ConfirmationLock = (*InMemoryLock)(nil)
