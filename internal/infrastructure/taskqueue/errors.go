package taskqueue

import (
	"errors"

	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
)

var (
	// ErrQueueClosed is returned when submitting to a queue that is shutting down
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrQueueNotStarted is returned when submitting before Start
	ErrQueueNotStarted = errors.New("task queue is not started")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid task queue configuration")

	// ErrRetryExhausted wraps the last error of a unit that used all its attempts.
	// It carries the RETRY_EXHAUSTED domain code.
	ErrRetryExhausted = shared.ErrRetryExhausted
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The unit fails on the current attempt
// and its outcome carries err itself.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
