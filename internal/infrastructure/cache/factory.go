// Package cache provides confirmation lock backends: Redis for shared
// deployments, an in-process map for single instances and tests.
package cache

import (
	"fmt"

	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/config"
	"go.uber.org/zap"
)

// LockFactory creates confirmation locks based on configuration
type LockFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// LockFactoryOption is a functional option for configuring the factory
type LockFactoryOption func(*LockFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) LockFactoryOption {
	return func(f *LockFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory lock when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) LockFactoryOption {
	return func(f *LockFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLockFactory creates a new factory
func NewLockFactory(cfg config.RedisConfig, opts ...LockFactoryOption) *LockFactory {
	f := &LockFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisLock creates a Redis-backed lock
func (f *LockFactory) CreateRedisLock() (shared.ConfirmationLock, error) {
	lock, err := NewRedisLock(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis confirmation lock: %w", err)
	}
	return lock, nil
}

// CreateInMemoryLock creates an in-process lock.
// It does not exclude confirmations running in other processes.
func (f *LockFactory) CreateInMemoryLock() shared.ConfirmationLock {
	return NewInMemoryLock()
}

// CreateLock returns a Redis lock when Redis is enabled and reachable,
// otherwise an in-memory lock if fallback is allowed
func (f *LockFactory) CreateLock() (shared.ConfirmationLock, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory confirmation lock")
		return f.CreateInMemoryLock(), nil
	}

	lock, err := f.CreateRedisLock()
	if err == nil {
		f.logger.Info("Using Redis confirmation lock", zap.String("addr", f.redisConfig.Addr()))
		return lock, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for confirmation locks but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory confirmation lock. "+
		"Concurrent confirmations of one bill from different instances will not be excluded.",
		zap.Error(err),
	)
	return f.CreateInMemoryLock(), nil
}
