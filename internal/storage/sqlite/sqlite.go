package sqlite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

// Store persists sessions and events in a single WAL-mode SQLite file.
type Store struct {
	db   dbHandle
	path string
}

var _ storage.Store = (*Store)(nil)

// New opens (creating if needed) the database at path and applies pending
// migrations. A schema failure here is fatal: the store must not run
// against a partially migrated database.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sqlx.Connect("sqlite", fileDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// database/sql is the bounded checkout/return pool; WAL lets readers
	// proceed while one writer holds the log.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	st := &Store{db: newSlowLogger(db), path: path}
	if err := st.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// NewInMemory opens a private in-memory store for tests.
func NewInMemory() (*Store, error) {
	name := "chronicle_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	db, err := sqlx.Connect("sqlite", "file:"+name+"?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A shared-cache memory db lives only while a connection holds it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	st := &Store{db: newSlowLogger(db), path: ":memory:"}
	if err := st.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func fileDSN(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=synchronous(NORMAL)"
}

// Path returns the database file path, or ":memory:" for memory stores.
func (s *Store) Path() string { return s.path }

// Health verifies the connection can serve a trivial read.
func (s *Store) Health() error {
	var one int
	if err := s.db.Get(&one, `SELECT 1`); err != nil {
		return fmt.Errorf("store health: %w", err)
	}
	return nil
}

// CheckpointWAL truncates the write-ahead log so its size stays bounded.
// A failed checkpoint is never fatal; callers log and retry next interval.
func (s *Store) CheckpointWAL() error {
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Timestamps are stored as RFC3339Nano UTC text. Tail ordering rides on
// the integer event id, never on text comparison.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func marshalMetadata(m core.Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: metadata not JSON-representable: %v", storage.ErrInvalidInput, err)
	}
	return string(b), nil
}

func unmarshalMetadata(s string) core.Metadata {
	if s == "" || s == "{}" {
		return nil
	}
	var m core.Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
