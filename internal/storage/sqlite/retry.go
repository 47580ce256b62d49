package sqlite

import (
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls exponential backoff retry behavior.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	JitterPct  float64 // e.g. 0.25 for 25% jitter
}

// DefaultRetryConfig returns the default retry configuration:
// 7 retries, 50ms base, 25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 7,
		BaseDelay:  50 * time.Millisecond,
		JitterPct:  0.25,
	}
}

// RetryOnDBLock retries fn on "database is locked" errors using default
// config. Hook bursts (many parallel tool_use posts) routinely contend
// on the single writer; backing off is almost always enough.
func RetryOnDBLock(fn func() error) error {
	return retryOnDBLockInternal(DefaultRetryConfig(), fn, time.Sleep)
}

// RetryOnDBLockWithConfig retries fn on "database is locked" errors using the given config.
func RetryOnDBLockWithConfig(cfg RetryConfig, fn func() error) error {
	return retryOnDBLockInternal(cfg, fn, time.Sleep)
}

func retryOnDBLockInternal(cfg RetryConfig, fn func() error, sleepFn func(time.Duration)) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !isDBLocked(err) {
		return err
	}

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		delay := cfg.BaseDelay * (1 << (attempt - 1))
		jitter := time.Duration(float64(delay) * rand.Float64() * cfg.JitterPct)
		sleepFn(delay + jitter)

		err = fn()
		if err == nil {
			return nil
		}
		if !isDBLocked(err) {
			return err
		}
	}
	return err
}

func isDBLocked(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}
