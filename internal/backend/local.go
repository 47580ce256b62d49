package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

// Local persists through the storage layer. It is also the mirror
// target while a remote backend is primary, so the local database stays
// complete either way.
type Local struct {
	store storage.Store
}

func NewLocal(store storage.Store) *Local {
	return &Local{store: store}
}

func (l *Local) Name() string { return "local" }

func (l *Local) SaveSession(_ context.Context, rec core.SessionRecord) (core.Session, error) {
	if err := rec.Validate(); err != nil {
		return core.Session{}, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	sess := core.Session{
		ID:                CanonicalSessionID(rec.SessionID),
		ExternalSessionID: rec.SessionID,
		ProjectPath:       rec.ProjectPath,
		GitBranch:         rec.GitBranch,
		StartTime:         rec.StartTime,
		EndTime:           rec.EndTime,
		Metadata:          rec.Metadata,
	}
	return l.store.SaveSession(sess)
}

func (l *Local) SaveEvent(_ context.Context, rec core.EventRecord) (core.Event, error) {
	if err := rec.Validate(); err != nil {
		return core.Event{}, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	eventType, recognized := core.NormalizeEventType(rec.EventType)
	data := rec.Data
	if !recognized && strings.TrimSpace(rec.EventType) != "" {
		if data == nil {
			data = core.Metadata{}
		}
		data["original_event_type"] = rec.EventType
	}

	sess, err := l.resolveSession(rec.SessionID)
	if err != nil {
		return core.Event{}, err
	}

	ev := core.Event{
		SessionID:  sess.ID,
		EventType:  eventType,
		Timestamp:  rec.Timestamp,
		Metadata:   data,
		ToolName:   rec.ToolName,
		DurationMS: rec.DurationMS,
	}
	return l.store.SaveEvent(ev)
}

// resolveSession finds the session an event refers to, creating a stub
// when events for a session arrive before (or without) its session
// record. Hooks fire in no guaranteed order.
func (l *Local) resolveSession(ref string) (core.Session, error) {
	sess, err := l.store.GetSession(ref)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return core.Session{}, fmt.Errorf("resolve session: %w", err)
	}
	return l.store.SaveSession(core.Session{
		ID:                CanonicalSessionID(ref),
		ExternalSessionID: ref,
	})
}

func (l *Local) Health(context.Context) error {
	return l.store.Health()
}

// Close is a no-op: the server owns the store's lifecycle, the backend
// only borrows it.
func (l *Local) Close() error { return nil }
