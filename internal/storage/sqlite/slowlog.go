package sqlite

import (
	"database/sql"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
)

const slowOpThreshold = 100 * time.Millisecond

// dbHandle is the subset of *sqlx.DB the store uses, satisfied by both the
// raw handle and the slow-op logger that wraps it.
type dbHandle interface {
	Exec(query string, args ...any) (sql.Result, error)
	Get(dest any, query string, args ...any) error
	Select(dest any, query string, args ...any) error
	Beginx() (*sqlx.Tx, error)
	Close() error
}

// slowLogger wraps a *sqlx.DB and logs operations that exceed the
// single-digit-milliseconds latency target by a wide margin.
type slowLogger struct {
	inner *sqlx.DB
}

func newSlowLogger(db *sqlx.DB) *slowLogger {
	return &slowLogger{inner: db}
}

func (l *slowLogger) Exec(query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := l.inner.Exec(query, args...)
	logSlow(start, query)
	return res, err
}

func (l *slowLogger) Get(dest any, query string, args ...any) error {
	start := time.Now()
	err := l.inner.Get(dest, query, args...)
	logSlow(start, query)
	return err
}

func (l *slowLogger) Select(dest any, query string, args ...any) error {
	start := time.Now()
	err := l.inner.Select(dest, query, args...)
	logSlow(start, query)
	return err
}

func (l *slowLogger) Beginx() (*sqlx.Tx, error) {
	return l.inner.Beginx()
}

func (l *slowLogger) Close() error {
	return l.inner.Close()
}

func logSlow(start time.Time, query string) {
	if d := time.Since(start); d >= slowOpThreshold {
		log.Printf("storage: slow query (%s): %s", d.Round(time.Millisecond), truncateQuery(query))
	}
}

func truncateQuery(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
