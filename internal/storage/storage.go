package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

var (
	// ErrNotFound is returned when a session or event does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidInput is returned for writes that fail validation.
	ErrInvalidInput = errors.New("storage: invalid input")
)

// EventFilter narrows and pages event queries.
type EventFilter struct {
	SessionID  string
	EventType  core.EventType
	ToolName   string
	Since      time.Time
	Limit      int
	Offset     int
	OrderBy    string // timestamp | created_at | id
	Descending bool
}

// SessionFilter narrows and pages session queries.
type SessionFilter struct {
	ActiveOnly  bool
	ProjectPath string
	Limit       int
	Offset      int
}

// ParseOrderBy splits a "field:direction" query value against the
// whitelist of sortable event columns. Empty input defaults to
// timestamp descending.
func ParseOrderBy(s string) (field string, descending bool, err error) {
	if s == "" {
		return "timestamp", true, nil
	}
	field = s
	dir := "desc"
	if i := strings.IndexByte(s, ':'); i >= 0 {
		field, dir = s[:i], s[i+1:]
	}
	switch field {
	case "timestamp", "created_at", "id":
	default:
		return "", false, fmt.Errorf("%w: order_by field %q", ErrInvalidInput, field)
	}
	switch strings.ToLower(dir) {
	case "asc":
		return field, false, nil
	case "desc":
		return field, true, nil
	default:
		return "", false, fmt.Errorf("%w: order_by direction %q", ErrInvalidInput, dir)
	}
}

// TypeCount pairs an event type with its occurrence count.
type TypeCount struct {
	EventType core.EventType `json:"event_type"`
	Count     int64          `json:"count"`
}

// NameCount pairs a tool or project name with its occurrence count.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// HourCount is one bucket of the recent-activity feed.
type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// MetricsSummary aggregates store activity over a rolling window.
type MetricsSummary struct {
	Window            string      `json:"window"`
	TotalSessions     int64       `json:"total_sessions"`
	ActiveSessions    int64       `json:"active_sessions"`
	TotalEvents       int64       `json:"total_events"`
	EventsByType      []TypeCount `json:"events_by_type"`
	TopTools          []NameCount `json:"top_tools"`
	TopProjects       []NameCount `json:"top_projects"`
	AvgSessionSeconds float64     `json:"avg_session_seconds"`
	EventsPerHour     []HourCount `json:"events_per_hour"`
	GeneratedAt       time.Time   `json:"generated_at"`
}

// Store is the persistence contract shared by the SQLite implementation
// and the in-memory test double.
type Store interface {
	// SaveSession upserts by external session id and returns the stored
	// row. A second save with the same external id updates mutable fields
	// and returns the same internal id.
	SaveSession(s core.Session) (core.Session, error)
	GetSession(id string) (core.Session, error)
	GetSessionEvents(sessionID string, limit int) ([]core.Event, error)
	GetRecentSessions(limit int) ([]core.Session, error)
	QuerySessions(f SessionFilter) ([]core.Session, error)

	// SaveEvent inserts an immutable event row; the returned event carries
	// the store-assigned id and created_at. Unknown event types are
	// normalized, never rejected.
	SaveEvent(ev core.Event) (core.Event, error)
	QueryEvents(f EventFilter) ([]core.Event, error)
	// EventsSince returns events with id greater than cursor, ascending,
	// capped at limit. This is the broadcaster's tail read.
	EventsSince(cursor int64, limit int) ([]core.Event, error)
	// LatestEventID returns the highest event id, or 0 on an empty store.
	LatestEventID() (int64, error)

	DeleteEvent(id int64) error
	DeleteSession(id string) error
	// CleanupOldData deletes terminated sessions older than retentionDays
	// and, via cascade, their events. Returns the session count removed.
	CleanupOldData(retentionDays int) (int64, error)

	MetricsSummary(window time.Duration) (MetricsSummary, error)
	Health() error
	Close() error
}

// InMemory is a mutex-guarded in-memory Store for tests.
type InMemory struct {
	mu         sync.Mutex
	nextID     int64
	sessions   map[string]core.Session // internal id -> session
	byExternal map[string]string       // external id -> internal id
	events     []core.Event
}

func NewInMemory() *InMemory {
	return &InMemory{
		sessions:   make(map[string]core.Session),
		byExternal: make(map[string]string),
	}
}

func (m *InMemory) SaveSession(s core.Session) (core.Session, error) {
	if s.ExternalSessionID == "" {
		return core.Session{}, fmt.Errorf("%w: external session id required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if id, ok := m.byExternal[s.ExternalSessionID]; ok {
		existing := m.sessions[id]
		if s.ProjectPath != "" {
			existing.ProjectPath = s.ProjectPath
		}
		if s.GitBranch != "" {
			existing.GitBranch = s.GitBranch
		}
		if s.Metadata != nil {
			existing.Metadata = s.Metadata
		}
		if s.EndTime != nil && existing.EndTime == nil {
			existing.EndTime = s.EndTime
		}
		existing.UpdatedAt = now
		m.sessions[id] = existing
		return existing, nil
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartTime.IsZero() {
		s.StartTime = now
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	s.EventCount = 0
	m.sessions[s.ID] = s
	m.byExternal[s.ExternalSessionID] = s.ID
	return s, nil
}

func (m *InMemory) GetSession(id string) (core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if internal, ok := m.byExternal[id]; ok {
		return m.sessions[internal], nil
	}
	return core.Session{}, ErrNotFound
}

func (m *InMemory) GetSessionEvents(sessionID string, limit int) ([]core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Event
	for _, ev := range m.events {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) GetRecentSessions(limit int) ([]core.Session, error) {
	return m.QuerySessions(SessionFilter{Limit: limit})
}

func (m *InMemory) QuerySessions(f SessionFilter) ([]core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Session
	for _, s := range m.sessions {
		if f.ActiveOnly && !s.Active() {
			continue
		}
		if f.ProjectPath != "" && s.ProjectPath != f.ProjectPath {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	out = page(out, f.Limit, f.Offset)
	return out, nil
}

func (m *InMemory) SaveEvent(ev core.Event) (core.Event, error) {
	if ev.SessionID == "" {
		return core.Event{}, fmt.Errorf("%w: session id required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[ev.SessionID]
	if !ok {
		return core.Event{}, fmt.Errorf("%w: session %s", ErrNotFound, ev.SessionID)
	}
	if !ev.EventType.Valid() {
		ev.EventType = core.DefaultEventType
	}
	m.nextID++
	ev.ID = m.nextID
	ev.CreatedAt = time.Now().UTC()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = ev.CreatedAt
	}
	m.events = append(m.events, ev)

	s.EventCount++
	if ev.EventType.Terminal() && s.EndTime == nil {
		end := ev.Timestamp
		s.EndTime = &end
	}
	s.UpdatedAt = ev.CreatedAt
	m.sessions[ev.SessionID] = s
	return ev, nil
}

func (m *InMemory) QueryEvents(f EventFilter) ([]core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Event
	for _, ev := range m.events {
		if f.SessionID != "" && ev.SessionID != f.SessionID {
			continue
		}
		if f.EventType != "" && ev.EventType != f.EventType {
			continue
		}
		if f.ToolName != "" && ev.ToolName != f.ToolName {
			continue
		}
		if !f.Since.IsZero() && ev.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, ev)
	}
	field := f.OrderBy
	if field == "" {
		field = "timestamp"
	}
	sort.Slice(out, func(i, j int) bool {
		var less bool
		switch field {
		case "id":
			less = out[i].ID < out[j].ID
		case "created_at":
			less = out[i].CreatedAt.Before(out[j].CreatedAt)
		default:
			less = out[i].Timestamp.Before(out[j].Timestamp)
		}
		if f.Descending {
			return !less
		}
		return less
	})
	out = page(out, f.Limit, f.Offset)
	return out, nil
}

func (m *InMemory) EventsSince(cursor int64, limit int) ([]core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Event
	for _, ev := range m.events {
		if ev.ID > cursor {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) LatestEventID() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextID, nil
}

func (m *InMemory) DeleteEvent(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ev := range m.events {
		if ev.ID == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			if s, ok := m.sessions[ev.SessionID]; ok && s.EventCount > 0 {
				s.EventCount--
				m.sessions[ev.SessionID] = s
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *InMemory) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.byExternal, s.ExternalSessionID)
	kept := m.events[:0]
	for _, ev := range m.events {
		if ev.SessionID != id {
			kept = append(kept, ev)
		}
	}
	m.events = kept
	return nil
}

func (m *InMemory) CleanupOldData(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("%w: retention days must be positive", ErrInvalidInput)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	m.mu.Lock()
	var victims []string
	for id, s := range m.sessions {
		if !s.Active() && s.CreatedAt.Before(cutoff) {
			victims = append(victims, id)
		}
	}
	m.mu.Unlock()
	for _, id := range victims {
		if err := m.DeleteSession(id); err != nil {
			return int64(len(victims)), err
		}
	}
	return int64(len(victims)), nil
}

func (m *InMemory) MetricsSummary(window time.Duration) (MetricsSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	since := now.Add(-window)
	sum := MetricsSummary{Window: window.String(), GeneratedAt: now}
	byType := map[core.EventType]int64{}
	for _, ev := range m.events {
		if ev.CreatedAt.Before(since) {
			continue
		}
		sum.TotalEvents++
		byType[ev.EventType]++
	}
	for et, n := range byType {
		sum.EventsByType = append(sum.EventsByType, TypeCount{EventType: et, Count: n})
	}
	sort.Slice(sum.EventsByType, func(i, j int) bool { return sum.EventsByType[i].Count > sum.EventsByType[j].Count })
	for _, s := range m.sessions {
		if s.CreatedAt.Before(since) {
			continue
		}
		sum.TotalSessions++
		if s.Active() {
			sum.ActiveSessions++
		}
	}
	return sum, nil
}

func (m *InMemory) Health() error { return nil }
func (m *InMemory) Close() error  { return nil }

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
