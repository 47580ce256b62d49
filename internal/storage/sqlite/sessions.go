package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

const sessionColumns = `id, external_session_id, project_path, git_branch,
	start_time, end_time, metadata, event_count, created_at, updated_at`

type sessionRow struct {
	ID                string         `db:"id"`
	ExternalSessionID string         `db:"external_session_id"`
	ProjectPath       string         `db:"project_path"`
	GitBranch         string         `db:"git_branch"`
	StartTime         string         `db:"start_time"`
	EndTime           sql.NullString `db:"end_time"`
	Metadata          string         `db:"metadata"`
	EventCount        int64          `db:"event_count"`
	CreatedAt         string         `db:"created_at"`
	UpdatedAt         string         `db:"updated_at"`
}

func (r sessionRow) toCore() core.Session {
	s := core.Session{
		ID:                r.ID,
		ExternalSessionID: r.ExternalSessionID,
		ProjectPath:       r.ProjectPath,
		GitBranch:         r.GitBranch,
		StartTime:         parseTime(r.StartTime),
		Metadata:          unmarshalMetadata(r.Metadata),
		EventCount:        r.EventCount,
		CreatedAt:         parseTime(r.CreatedAt),
		UpdatedAt:         parseTime(r.UpdatedAt),
	}
	if r.EndTime.Valid {
		end := parseTime(r.EndTime.String)
		s.EndTime = &end
	}
	return s
}

// SaveSession upserts by external session id. The unique constraint on
// external_session_id makes concurrent saves for the same external id
// collapse onto one row; mutable fields are last-write-wins, end_time
// is write-once.
func (s *Store) SaveSession(sess core.Session) (core.Session, error) {
	if strings.TrimSpace(sess.ExternalSessionID) == "" {
		return core.Session{}, fmt.Errorf("%w: external session id required", storage.ErrInvalidInput)
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sess.StartTime.IsZero() {
		sess.StartTime = now
	}
	meta, err := marshalMetadata(sess.Metadata)
	if err != nil {
		return core.Session{}, err
	}
	var end any
	if sess.EndTime != nil {
		end = formatTime(*sess.EndTime)
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions (id, external_session_id, project_path, git_branch,
			start_time, end_time, metadata, event_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(external_session_id) DO UPDATE SET
			project_path = CASE WHEN excluded.project_path != '' THEN excluded.project_path ELSE sessions.project_path END,
			git_branch   = CASE WHEN excluded.git_branch != '' THEN excluded.git_branch ELSE sessions.git_branch END,
			metadata     = CASE WHEN excluded.metadata != '{}' THEN excluded.metadata ELSE sessions.metadata END,
			end_time     = COALESCE(sessions.end_time, excluded.end_time),
			updated_at   = excluded.updated_at`,
		sess.ID, sess.ExternalSessionID, sess.ProjectPath, sess.GitBranch,
		formatTime(sess.StartTime), end, meta, formatTime(now), formatTime(now),
	)
	if err != nil {
		return core.Session{}, fmt.Errorf("save session: %w", err)
	}

	var row sessionRow
	if err := s.db.Get(&row,
		`SELECT `+sessionColumns+` FROM sessions WHERE external_session_id = ?`,
		sess.ExternalSessionID,
	); err != nil {
		return core.Session{}, fmt.Errorf("read back session: %w", err)
	}
	return row.toCore(), nil
}

// GetSession looks up by internal id first, then by external id, so
// callers holding either identifier resolve to the same row.
func (s *Store) GetSession(id string) (core.Session, error) {
	var row sessionRow
	err := s.db.Get(&row,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ? OR external_session_id = ?`,
		id, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	return row.toCore(), nil
}

func (s *Store) GetRecentSessions(limit int) ([]core.Session, error) {
	return s.QuerySessions(storage.SessionFilter{Limit: limit})
}

func (s *Store) QuerySessions(f storage.SessionFilter) ([]core.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if f.ActiveOnly {
		query += ` AND end_time IS NULL`
	}
	if f.ProjectPath != "" {
		query += ` AND project_path = ?`
		args = append(args, f.ProjectPath)
	}
	query += ` ORDER BY start_time DESC`
	query, args = paginate(query, args, f.Limit, f.Offset)

	var rows []sessionRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	out := make([]core.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CleanupOldData removes terminated sessions created before the
// retention cutoff. Their events go with them via the cascade.
func (s *Store) CleanupOldData(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("%w: retention days must be positive", storage.ErrInvalidInput)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := s.db.Exec(
		`DELETE FROM sessions WHERE end_time IS NOT NULL AND created_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return n, nil
}

// paginate appends LIMIT/OFFSET. SQLite requires a LIMIT clause to use
// OFFSET, so an unbounded offset query gets LIMIT -1.
func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	} else if offset > 0 {
		query += ` LIMIT -1`
	}
	if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}
	return query, args
}
