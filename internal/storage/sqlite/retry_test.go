package sqlite

import (
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsOnTransientLock(t *testing.T) {
	calls := 0
	err := retryOnDBLockInternal(DefaultRetryConfig(), func() error {
		calls++
		if calls <= 3 {
			return errors.New("database is locked")
		}
		return nil
	}, func(d time.Duration) {}) // no-op sleep
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestRetryNoRetryOnOtherErrors(t *testing.T) {
	calls := 0
	err := retryOnDBLockInternal(DefaultRetryConfig(), func() error {
		calls++
		return errors.New("unique constraint violated")
	}, func(d time.Duration) {})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", calls)
	}
}

func TestRetryExhaustsAllAttempts(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig()
	err := retryOnDBLockInternal(cfg, func() error {
		calls++
		return errors.New("database is locked")
	}, func(d time.Duration) {})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	expected := 1 + cfg.MaxRetries // initial + retries
	if calls != expected {
		t.Fatalf("expected %d calls, got %d", expected, calls)
	}
}

func TestRetryRecognizesBusyVariants(t *testing.T) {
	for _, msg := range []string{
		"database is locked",
		"database table is locked",
		"SQLITE_BUSY: cannot start a transaction",
	} {
		if !isDBLocked(errors.New(msg)) {
			t.Errorf("%q should be treated as a lock error", msg)
		}
	}
	if isDBLocked(errors.New("no such table: events")) {
		t.Error("schema errors must not be retried")
	}
}

func TestRetryExponentialBackoffWithJitterBounds(t *testing.T) {
	cfg := DefaultRetryConfig()
	var sleeps []time.Duration

	retryOnDBLockInternal(cfg, func() error {
		return errors.New("database is locked")
	}, func(d time.Duration) {
		sleeps = append(sleeps, d)
	})

	if len(sleeps) != cfg.MaxRetries {
		t.Fatalf("expected %d sleeps, got %d", cfg.MaxRetries, len(sleeps))
	}
	for i, d := range sleeps {
		base := cfg.BaseDelay * (1 << i)
		maxJitter := time.Duration(float64(base) * cfg.JitterPct)
		if d < base || d > base+maxJitter {
			t.Errorf("sleep[%d] = %v, expected [%v, %v]", i, d, base, base+maxJitter)
		}
	}
}
