package sqlite

import (
	"fmt"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

const topN = 5

// MetricsSummary aggregates activity over a rolling window ending now.
// All aggregation is pushed into SQL; the Go side only assembles the
// result struct.
func (s *Store) MetricsSummary(window time.Duration) (storage.MetricsSummary, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	now := time.Now().UTC()
	since := formatTime(now.Add(-window))

	out := storage.MetricsSummary{
		Window:      window.String(),
		GeneratedAt: now,
	}

	var sess struct {
		Total  int64 `db:"total"`
		Active int64 `db:"active"`
	}
	err := s.db.Get(&sess,
		`SELECT COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN end_time IS NULL THEN 1 ELSE 0 END), 0) AS active
		 FROM sessions WHERE created_at >= ?`, since)
	if err != nil {
		return out, fmt.Errorf("metrics sessions: %w", err)
	}
	out.TotalSessions = sess.Total
	out.ActiveSessions = sess.Active

	if err := s.db.Get(&out.TotalEvents,
		`SELECT COUNT(*) FROM events WHERE created_at >= ?`, since); err != nil {
		return out, fmt.Errorf("metrics events: %w", err)
	}

	var byType []struct {
		EventType string `db:"event_type"`
		Count     int64  `db:"count"`
	}
	err = s.db.Select(&byType,
		`SELECT event_type, COUNT(*) AS count FROM events
		 WHERE created_at >= ?
		 GROUP BY event_type ORDER BY count DESC, event_type ASC`, since)
	if err != nil {
		return out, fmt.Errorf("metrics by type: %w", err)
	}
	for _, r := range byType {
		out.EventsByType = append(out.EventsByType, storage.TypeCount{
			EventType: core.EventType(r.EventType),
			Count:     r.Count,
		})
	}

	var tools []struct {
		Name  string `db:"name"`
		Count int64  `db:"count"`
	}
	err = s.db.Select(&tools,
		`SELECT tool_name AS name, COUNT(*) AS count FROM events
		 WHERE created_at >= ? AND tool_name IS NOT NULL AND tool_name != ''
		 GROUP BY tool_name ORDER BY count DESC, name ASC LIMIT ?`, since, topN)
	if err != nil {
		return out, fmt.Errorf("metrics tools: %w", err)
	}
	for _, r := range tools {
		out.TopTools = append(out.TopTools, storage.NameCount{Name: r.Name, Count: r.Count})
	}

	var projects []struct {
		Name  string `db:"name"`
		Count int64  `db:"count"`
	}
	err = s.db.Select(&projects,
		`SELECT s.project_path AS name, COUNT(e.id) AS count
		 FROM events e JOIN sessions s ON s.id = e.session_id
		 WHERE e.created_at >= ? AND s.project_path != ''
		 GROUP BY s.project_path ORDER BY count DESC, name ASC LIMIT ?`, since, topN)
	if err != nil {
		return out, fmt.Errorf("metrics projects: %w", err)
	}
	for _, r := range projects {
		out.TopProjects = append(out.TopProjects, storage.NameCount{Name: r.Name, Count: r.Count})
	}

	// julianday handles the RFC 3339 text timestamps directly.
	err = s.db.Get(&out.AvgSessionSeconds,
		`SELECT COALESCE(AVG((julianday(end_time) - julianday(start_time)) * 86400.0), 0)
		 FROM sessions WHERE created_at >= ? AND end_time IS NOT NULL`, since)
	if err != nil {
		return out, fmt.Errorf("metrics session duration: %w", err)
	}

	var hours []struct {
		Hour  string `db:"hour"`
		Count int64  `db:"count"`
	}
	err = s.db.Select(&hours,
		`SELECT strftime('%Y-%m-%dT%H:00:00Z', created_at) AS hour, COUNT(*) AS count
		 FROM events WHERE created_at >= ?
		 GROUP BY hour ORDER BY hour ASC`, since)
	if err != nil {
		return out, fmt.Errorf("metrics per hour: %w", err)
	}
	for _, r := range hours {
		out.EventsPerHour = append(out.EventsPerHour, storage.HourCount{
			Hour:  parseTime(r.Hour),
			Count: r.Count,
		})
	}

	return out, nil
}
