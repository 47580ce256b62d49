package core

import (
	"fmt"
	"strings"
	"time"
)

// EventType classifies an observability event. The set is closed:
// unrecognized values are normalized to DefaultEventType at the ingestion
// boundary rather than rejected.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventUserPrompt   EventType = "user_prompt"
	EventToolUse      EventType = "tool_use"
	EventNotification EventType = "notification"
	EventError        EventType = "error"
)

// DefaultEventType is the fallback for event types outside the closed set.
const DefaultEventType = EventNotification

// eventTypeAliases maps raw hook event names onto canonical types.
// Lookup is case-insensitive.
var eventTypeAliases = map[string]EventType{
	"pretooluse":       EventToolUse,
	"posttooluse":      EventToolUse,
	"userpromptsubmit": EventUserPrompt,
	"prompt":           EventUserPrompt,
	"sessionstart":     EventSessionStart,
	"stop":             EventSessionEnd,
	"subagentstop":     EventSessionEnd,
	"sessionend":       EventSessionEnd,
	"precompact":       EventNotification,
}

// Valid reports whether t is a member of the closed event-type set.
func (t EventType) Valid() bool {
	switch t {
	case EventSessionStart, EventSessionEnd, EventUserPrompt, EventToolUse, EventNotification, EventError:
		return true
	}
	return false
}

// Terminal reports whether t ends a session's lifecycle.
func (t EventType) Terminal() bool {
	return t == EventSessionEnd
}

// NormalizeEventType maps a raw event-type string onto the closed set.
// Canonical values pass through; known hook-name aliases are translated;
// everything else coerces to DefaultEventType. The second return reports
// whether the input was recognized.
func NormalizeEventType(raw string) (EventType, bool) {
	s := strings.TrimSpace(raw)
	if t := EventType(strings.ToLower(s)); t.Valid() {
		return t, true
	}
	key := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(s, "_", ""), "-", ""))
	if t, ok := eventTypeAliases[key]; ok {
		return t, true
	}
	return DefaultEventType, false
}

// Metadata is an open string-keyed map carried alongside sessions and
// events. Values must be JSON-representable.
type Metadata map[string]any

// Session is one logical Claude Code run: started by the first record that
// references its external id, optionally ended by a terminal event.
type Session struct {
	ID                string     `json:"id"`
	ExternalSessionID string     `json:"external_session_id"`
	ProjectPath       string     `json:"project_path,omitempty"`
	GitBranch         string     `json:"git_branch,omitempty"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	Metadata          Metadata   `json:"metadata,omitempty"`
	EventCount        int64      `json:"event_count"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Active reports whether the session has not yet seen a terminal event.
func (s Session) Active() bool { return s.EndTime == nil }

// Event is a single immutable observability record tied to a session.
type Event struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	EventType  EventType `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionRecord is the shape instrumented callers submit to record a
// session. SessionID is the caller's external identifier.
type SessionRecord struct {
	SessionID   string     `json:"session_id"`
	ProjectPath string     `json:"project_path,omitempty"`
	GitBranch   string     `json:"git_branch,omitempty"`
	StartTime   time.Time  `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Metadata    Metadata   `json:"metadata,omitempty"`
}

// Validate checks the record at the ingestion boundary.
func (r SessionRecord) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

// EventRecord is the shape instrumented callers submit to record an event.
// SessionID may be either an internal session id or the caller's external
// id; EventType is raw and normalized during save.
type EventRecord struct {
	SessionID  string    `json:"session_id"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
	Data       Metadata  `json:"data,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
}

// Validate checks the record at the ingestion boundary. Unknown event
// types are not an error; they normalize to DefaultEventType on save.
func (r EventRecord) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.DurationMS != nil && *r.DurationMS < 0 {
		return fmt.Errorf("duration_ms must be non-negative, got %d", *r.DurationMS)
	}
	return nil
}
