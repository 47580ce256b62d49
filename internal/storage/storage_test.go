package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

func TestInMemoryUpsertBySameExternalID(t *testing.T) {
	st := NewInMemory()
	first, err := st.SaveSession(core.Session{ExternalSessionID: "ext-1", ProjectPath: "/a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := st.SaveSession(core.Session{ExternalSessionID: "ext-1", ProjectPath: "/b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("upsert allocated a second id: %s vs %s", first.ID, second.ID)
	}
	if second.ProjectPath != "/b" {
		t.Fatalf("mutable field not updated, got %q", second.ProjectPath)
	}
	all, _ := st.QuerySessions(SessionFilter{})
	if len(all) != 1 {
		t.Fatalf("expected 1 session, got %d", len(all))
	}
}

func TestInMemoryTerminalEventEndsSession(t *testing.T) {
	st := NewInMemory()
	s, _ := st.SaveSession(core.Session{ExternalSessionID: "ext-2"})
	if _, err := st.SaveEvent(core.Event{SessionID: s.ID, EventType: core.EventToolUse}); err != nil {
		t.Fatalf("save event: %v", err)
	}
	if _, err := st.SaveEvent(core.Event{SessionID: s.ID, EventType: core.EventSessionEnd}); err != nil {
		t.Fatalf("save terminal event: %v", err)
	}
	got, _ := st.GetSession(s.ID)
	if got.EventCount != 2 {
		t.Fatalf("event_count = %d, want 2", got.EventCount)
	}
	if got.Active() {
		t.Fatal("session should be ended after terminal event")
	}
}

func TestInMemoryEventsSinceAscending(t *testing.T) {
	st := NewInMemory()
	s, _ := st.SaveSession(core.Session{ExternalSessionID: "ext-3"})
	for i := 0; i < 5; i++ {
		if _, err := st.SaveEvent(core.Event{SessionID: s.ID, EventType: core.EventNotification}); err != nil {
			t.Fatalf("save event %d: %v", i, err)
		}
	}
	evs, err := st.EventsSince(2, 10)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("expected 3 events after cursor 2, got %d", len(evs))
	}
	for i := 1; i < len(evs); i++ {
		if evs[i].ID <= evs[i-1].ID {
			t.Fatalf("ids not ascending: %v then %v", evs[i-1].ID, evs[i].ID)
		}
	}
}

func TestInMemoryDeleteSessionRemovesEvents(t *testing.T) {
	st := NewInMemory()
	s, _ := st.SaveSession(core.Session{ExternalSessionID: "ext-4"})
	_, _ = st.SaveEvent(core.Event{SessionID: s.ID, EventType: core.EventToolUse})
	_, _ = st.SaveEvent(core.Event{SessionID: s.ID, EventType: core.EventToolUse})
	if err := st.DeleteSession(s.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := st.GetSession(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	evs, _ := st.QueryEvents(EventFilter{SessionID: s.ID})
	if len(evs) != 0 {
		t.Fatalf("orphaned events remain: %d", len(evs))
	}
}

func TestInMemoryUnknownTypeCoerced(t *testing.T) {
	st := NewInMemory()
	s, _ := st.SaveSession(core.Session{ExternalSessionID: "ext-5"})
	ev, err := st.SaveEvent(core.Event{SessionID: s.ID, EventType: core.EventType("wild")})
	if err != nil {
		t.Fatalf("unknown type rejected: %v", err)
	}
	if ev.EventType != core.DefaultEventType {
		t.Fatalf("event type = %q, want %q", ev.EventType, core.DefaultEventType)
	}
}

func TestParseOrderBy(t *testing.T) {
	cases := []struct {
		in      string
		field   string
		desc    bool
		wantErr bool
	}{
		{"", "timestamp", true, false},
		{"timestamp", "timestamp", true, false},
		{"timestamp:asc", "timestamp", false, false},
		{"created_at:desc", "created_at", true, false},
		{"id:asc", "id", false, false},
		{"tool_name:asc", "", false, true},
		{"timestamp:sideways", "", false, true},
	}
	for _, tc := range cases {
		field, desc, err := ParseOrderBy(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseOrderBy(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOrderBy(%q): %v", tc.in, err)
			continue
		}
		if field != tc.field || desc != tc.desc {
			t.Errorf("ParseOrderBy(%q) = (%q, %v), want (%q, %v)", tc.in, field, desc, tc.field, tc.desc)
		}
	}
}

func TestInMemoryQueryEventsFilters(t *testing.T) {
	st := NewInMemory()
	s1, _ := st.SaveSession(core.Session{ExternalSessionID: "f-1"})
	s2, _ := st.SaveSession(core.Session{ExternalSessionID: "f-2"})
	_, _ = st.SaveEvent(core.Event{SessionID: s1.ID, EventType: core.EventToolUse, ToolName: "bash", Timestamp: time.Now()})
	_, _ = st.SaveEvent(core.Event{SessionID: s1.ID, EventType: core.EventUserPrompt, Timestamp: time.Now()})
	_, _ = st.SaveEvent(core.Event{SessionID: s2.ID, EventType: core.EventToolUse, ToolName: "read", Timestamp: time.Now()})

	evs, _ := st.QueryEvents(EventFilter{SessionID: s1.ID})
	if len(evs) != 2 {
		t.Fatalf("session filter: got %d events, want 2", len(evs))
	}
	evs, _ = st.QueryEvents(EventFilter{EventType: core.EventToolUse})
	if len(evs) != 2 {
		t.Fatalf("type filter: got %d events, want 2", len(evs))
	}
	evs, _ = st.QueryEvents(EventFilter{ToolName: "bash"})
	if len(evs) != 1 || evs[0].ToolName != "bash" {
		t.Fatalf("tool filter: got %+v", evs)
	}
	evs, _ = st.QueryEvents(EventFilter{Limit: 1, Offset: 1, OrderBy: "id"})
	if len(evs) != 1 || evs[0].ID != 2 {
		t.Fatalf("pagination: got %+v", evs)
	}
}
