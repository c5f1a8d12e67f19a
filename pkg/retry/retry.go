// pkg/retry/retry.go - caller-level retry with exponential backoff.
//
// The engine itself never retries an action: a blind retry of a partially
// applied action risks double-application. Because every failed install
// rolls back cleanly, the safe retry unit is the whole run, and that is
// what callers wrap with Retry.

package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/windowsadmins/rollout/pkg/logging"
)

// NonRetryableError marks errors that should not be retried, such as
// preflight failures that will not change between attempts.
type NonRetryableError interface {
	error
	NonRetryable()
}

// Config defines the retry attempt schedule.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

// Retry runs action until it succeeds or attempts are exhausted.
func Retry(cfg Config, action func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2
	}
	interval := cfg.InitialInterval

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = action()
		if err == nil {
			return nil
		}

		var nonRetryable NonRetryableError
		if errors.As(err, &nonRetryable) {
			logging.Warn("Non-retryable error encountered", "attempt", attempt, "error", err)
			return err
		}

		if attempt < cfg.MaxAttempts {
			logging.Warn("Attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", cfg.MaxAttempts,
				"retry_delay", interval.String(),
				"error", err)
			time.Sleep(interval)
			interval = time.Duration(float64(interval) * cfg.Multiplier)
		}
	}
	return fmt.Errorf("action failed after %d attempts: %w", cfg.MaxAttempts, err)
}
