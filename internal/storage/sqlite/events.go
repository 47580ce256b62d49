package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

const eventColumns = `id, session_id, event_type, timestamp, metadata,
	tool_name, duration_ms, created_at`

type eventRow struct {
	ID         int64          `db:"id"`
	SessionID  string         `db:"session_id"`
	EventType  string         `db:"event_type"`
	Timestamp  string         `db:"timestamp"`
	Metadata   string         `db:"metadata"`
	ToolName   sql.NullString `db:"tool_name"`
	DurationMS sql.NullInt64  `db:"duration_ms"`
	CreatedAt  string         `db:"created_at"`
}

func (r eventRow) toCore() core.Event {
	e := core.Event{
		ID:        r.ID,
		SessionID: r.SessionID,
		EventType: core.EventType(r.EventType),
		Timestamp: parseTime(r.Timestamp),
		Metadata:  unmarshalMetadata(r.Metadata),
		CreatedAt: parseTime(r.CreatedAt),
	}
	if r.ToolName.Valid {
		e.ToolName = r.ToolName.String
	}
	if r.DurationMS.Valid {
		d := r.DurationMS.Int64
		e.DurationMS = &d
	}
	return e
}

// SaveEvent appends one event. Invalid event types are coerced to the
// default type rather than rejected; alias translation happens at the
// ingestion boundary before the event reaches the store.
func (s *Store) SaveEvent(ev core.Event) (core.Event, error) {
	if strings.TrimSpace(ev.SessionID) == "" {
		return core.Event{}, fmt.Errorf("%w: session id required", storage.ErrInvalidInput)
	}
	if !ev.EventType.Valid() {
		ev.EventType = core.DefaultEventType
	}
	now := time.Now().UTC()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	meta, err := marshalMetadata(ev.Metadata)
	if err != nil {
		return core.Event{}, err
	}
	var tool any
	if ev.ToolName != "" {
		tool = ev.ToolName
	}
	var duration any
	if ev.DurationMS != nil {
		duration = *ev.DurationMS
	}

	res, err := s.db.Exec(
		`INSERT INTO events (session_id, event_type, timestamp, metadata, tool_name, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, string(ev.EventType), formatTime(ev.Timestamp),
		meta, tool, duration, formatTime(now),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return core.Event{}, fmt.Errorf("session %s: %w", ev.SessionID, storage.ErrNotFound)
		}
		return core.Event{}, fmt.Errorf("save event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Event{}, fmt.Errorf("save event: %w", err)
	}
	ev.ID = id
	ev.CreatedAt = now
	return ev, nil
}

func (s *Store) GetSessionEvents(sessionID string, limit int) ([]core.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? ORDER BY timestamp DESC`
	args := []any{sessionID}
	query, args = paginate(query, args, limit, 0)

	var rows []eventRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("session events: %w", err)
	}
	return eventsFromRows(rows), nil
}

func (s *Store) QueryEvents(f storage.EventFilter) ([]core.Event, error) {
	field := f.OrderBy
	if field == "" {
		field = "timestamp"
	}
	// Whitelisted column names only; the field is spliced into SQL.
	switch field {
	case "timestamp", "created_at", "id":
	default:
		return nil, fmt.Errorf("%w: order_by field %q", storage.ErrInvalidInput, field)
	}
	dir := ` ASC`
	if f.Descending {
		dir = ` DESC`
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []any
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if f.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(f.EventType))
	}
	if f.ToolName != "" {
		query += ` AND tool_name = ?`
		args = append(args, f.ToolName)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(f.Since))
	}
	query += ` ORDER BY ` + field + dir
	query, args = paginate(query, args, f.Limit, f.Offset)

	var rows []eventRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return eventsFromRows(rows), nil
}

// EventsSince returns events with id strictly greater than cursor in
// insertion order. The autoincrement id is the broadcast cursor: it
// never reorders and never reuses values.
func (s *Store) EventsSince(cursor int64, limit int) ([]core.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRow
	err := s.db.Select(&rows,
		`SELECT `+eventColumns+` FROM events WHERE id > ? ORDER BY id ASC LIMIT ?`,
		cursor, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("events since %d: %w", cursor, err)
	}
	return eventsFromRows(rows), nil
}

func (s *Store) LatestEventID() (int64, error) {
	var id int64
	if err := s.db.Get(&id, `SELECT COALESCE(MAX(id), 0) FROM events`); err != nil {
		return 0, fmt.Errorf("latest event id: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteEvent(id int64) error {
	res, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func eventsFromRows(rows []eventRow) []core.Event {
	out := make([]core.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out
}
