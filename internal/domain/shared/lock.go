package shared

import (
	"context"
	"time"
)

// ConfirmationLock guards a key so that at most one holder works on it at a time.
// It backs the "one active confirmation per bill" rule.
type ConfirmationLock interface {
	// Acquire takes the lock for key with a TTL.
	// Returns true if the lock was taken, false if someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops the lock for key. Releasing a lock that is not held is not an error.
	Release(ctx context.Context, key string) error

	// Close closes the lock backend and releases resources
	Close() error
}

// LockConfig holds configuration for confirmation locking
type LockConfig struct {
	// TTL bounds how long a crashed holder can block a bill.
	// Default: 5 minutes
	TTL time.Duration

	// Enabled determines whether locking is enabled
	// Default: true
	Enabled bool
}

// DefaultLockConfig returns the default lock configuration
func DefaultLockConfig() LockConfig {
	return LockConfig{
		TTL:     5 * time.Minute,
		Enabled: true,
	}
}
