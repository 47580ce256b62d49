package sqlite

import (
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*ResilientStore)(nil)

// ResilientStore wraps every method of *Store with CircuitBreaker +
// RetryOnDBLock to ride out transient SQLite errors (database-is-locked
// during hook bursts, brief I/O failures). ErrCircuitOpen from here
// means the database has been failing persistently.
type ResilientStore struct {
	inner *Store
	cb    *CircuitBreaker
}

// NewResilient creates a ResilientStore with default circuit breaker settings
// (threshold=5, resetTimeout=30s).
func NewResilient(inner *Store) *ResilientStore {
	return &ResilientStore{inner: inner, cb: NewCircuitBreaker(5, 30*time.Second)}
}

// NewResilientWithBreaker creates a ResilientStore with a custom circuit breaker.
func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *ResilientStore {
	return &ResilientStore{inner: inner, cb: cb}
}

// CircuitBreakerState returns the current state of the circuit breaker as a string.
func (r *ResilientStore) CircuitBreakerState() string {
	return r.cb.State().String()
}

func (r *ResilientStore) SaveSession(sess core.Session) (core.Session, error) {
	var result core.Session
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.SaveSession(sess)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) GetSession(id string) (core.Session, error) {
	var result core.Session
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.GetSession(id)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) GetRecentSessions(limit int) ([]core.Session, error) {
	var result []core.Session
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.GetRecentSessions(limit)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) QuerySessions(f storage.SessionFilter) ([]core.Session, error) {
	var result []core.Session
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.QuerySessions(f)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) SaveEvent(ev core.Event) (core.Event, error) {
	var result core.Event
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.SaveEvent(ev)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) GetSessionEvents(sessionID string, limit int) ([]core.Event, error) {
	var result []core.Event
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.GetSessionEvents(sessionID, limit)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) QueryEvents(f storage.EventFilter) ([]core.Event, error) {
	var result []core.Event
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.QueryEvents(f)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) EventsSince(cursor int64, limit int) ([]core.Event, error) {
	var result []core.Event
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.EventsSince(cursor, limit)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) LatestEventID() (int64, error) {
	var result int64
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.LatestEventID()
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) DeleteEvent(id int64) error {
	return r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			return r.inner.DeleteEvent(id)
		})
	})
}

func (r *ResilientStore) DeleteSession(id string) error {
	return r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			return r.inner.DeleteSession(id)
		})
	})
}

func (r *ResilientStore) CleanupOldData(retentionDays int) (int64, error) {
	var result int64
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.CleanupOldData(retentionDays)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) MetricsSummary(window time.Duration) (storage.MetricsSummary, error) {
	var result storage.MetricsSummary
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.MetricsSummary(window)
			return innerErr
		})
	})
	return result, err
}

// Health bypasses the retry wrapper: a health probe should report the
// current condition, not paper over it.
func (r *ResilientStore) Health() error {
	return r.cb.Execute(func() error {
		return r.inner.Health()
	})
}

// CheckpointWAL wraps the Store's WAL checkpoint with CB+retry.
func (r *ResilientStore) CheckpointWAL() error {
	return r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			return r.inner.CheckpointWAL()
		})
	})
}

// SchemaVersion delegates directly; the schema table is read-only after startup.
func (r *ResilientStore) SchemaVersion() (int, error) {
	return r.inner.SchemaVersion()
}

// Close delegates directly to the inner store without CB or retry.
func (r *ResilientStore) Close() error {
	return r.inner.Close()
}
