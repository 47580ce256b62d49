package sqlite

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
)

// currentSchemaVersion is the schema version this build expects.
// Bump it when adding a migration below.
const currentSchemaVersion = 4

// ensureSchema applies pending migrations in strictly increasing version
// order. Each migration runs inside a transaction that also records its
// version row, so a crash mid-migration is recovered by re-running.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	have, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	if have > currentSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than this build (v%d)", have, currentSchemaVersion)
	}

	for v := have + 1; v <= currentSchemaVersion; v++ {
		if err := s.applyMigration(v); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v, err)
		}
		log.Printf("storage: schema migrated to v%d", v)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, 0 for a
// fresh database.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.db.Get(&v, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (s *Store) applyMigration(version int) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var migrate func(*sqlx.Tx) error
	switch version {
	case 1:
		migrate = migrateToV1
	case 2:
		migrate = migrateToV2
	case 3:
		migrate = migrateToV3
	case 4:
		migrate = migrateToV4
	default:
		return fmt.Errorf("no migration registered for version %d", version)
	}
	if err := migrate(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
		version, formatTime(time.Now())); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

func execAll(tx *sqlx.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%w (statement: %s)", err, truncateQuery(stmt))
		}
	}
	return nil
}

// migrateToV1 creates the sessions and events tables with core indexes.
// events.id is AUTOINCREMENT so ids are monotonic and never reused; the
// broadcaster's cursor depends on that.
func migrateToV1(tx *sqlx.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			external_session_id TEXT NOT NULL UNIQUE,
			project_path TEXT NOT NULL DEFAULT '',
			git_branch TEXT NOT NULL DEFAULT '',
			start_time TEXT NOT NULL,
			end_time TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			event_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_time ON events(session_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time DESC)`,
	})
}

// migrateToV2 adds the tool columns that arrived with tool-use capture.
func migrateToV2(tx *sqlx.Tx) error {
	return execAll(tx, []string{
		`ALTER TABLE events ADD COLUMN tool_name TEXT`,
		`ALTER TABLE events ADD COLUMN duration_ms INTEGER`,
		`CREATE INDEX IF NOT EXISTS idx_events_tool ON events(tool_name) WHERE tool_name IS NOT NULL`,
	})
}

// migrateToV3 adds the dashboard convenience views.
func migrateToV3(tx *sqlx.Tx) error {
	return execAll(tx, []string{
		`CREATE VIEW IF NOT EXISTS active_sessions AS
			SELECT id, external_session_id, project_path, git_branch, start_time,
			       metadata, event_count, created_at, updated_at
			FROM sessions
			WHERE end_time IS NULL`,
		`CREATE VIEW IF NOT EXISTS recent_events AS
			SELECT e.id, e.session_id, s.external_session_id, s.project_path,
			       e.event_type, e.tool_name, e.duration_ms, e.timestamp, e.created_at
			FROM events e
			JOIN sessions s ON s.id = e.session_id
			WHERE e.created_at >= strftime('%Y-%m-%dT%H:%M:%f', 'now', '-24 hours')`,
	})
}

// migrateToV4 installs the counter and lifecycle triggers. end_time is
// stamped only while still NULL, so a session ends exactly once; the
// terminal type here must stay in sync with core.EventType.Terminal.
func migrateToV4(tx *sqlx.Tx) error {
	return execAll(tx, []string{
		`CREATE TRIGGER IF NOT EXISTS events_count_after_insert
			AFTER INSERT ON events
			BEGIN
				UPDATE sessions
				SET event_count = event_count + 1, updated_at = NEW.created_at
				WHERE id = NEW.session_id;
			END`,
		`CREATE TRIGGER IF NOT EXISTS events_count_after_delete
			AFTER DELETE ON events
			BEGIN
				UPDATE sessions
				SET event_count = MAX(event_count - 1, 0)
				WHERE id = OLD.session_id;
			END`,
		`CREATE TRIGGER IF NOT EXISTS session_end_on_terminal
			AFTER INSERT ON events
			WHEN NEW.event_type = 'session_end'
			BEGIN
				UPDATE sessions
				SET end_time = NEW.timestamp
				WHERE id = NEW.session_id AND end_time IS NULL;
			END`,
	})
}
