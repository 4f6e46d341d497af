package scheduler

import "errors"

// ErrInvalidConfig is returned for an unparsable cron schedule or a non-positive threshold
var ErrInvalidConfig = errors.New("scheduler: invalid sweeper configuration")
