package sqlite

import (
	"testing"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

func NewSQLiteTest(t *testing.T) *Store {
	t.Helper()
	st, err := NewInMemory()
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedSession(t *testing.T, st *Store, externalID string) core.Session {
	t.Helper()
	sess, err := st.SaveSession(core.Session{
		ExternalSessionID: externalID,
		ProjectPath:       "/home/dev/project",
		GitBranch:         "main",
	})
	if err != nil {
		t.Fatalf("seed session %s: %v", externalID, err)
	}
	return sess
}

func seedEvent(t *testing.T, st *Store, sessionID string, typ core.EventType) core.Event {
	t.Helper()
	ev, err := st.SaveEvent(core.Event{SessionID: sessionID, EventType: typ})
	if err != nil {
		t.Fatalf("seed event %s: %v", typ, err)
	}
	return ev
}
