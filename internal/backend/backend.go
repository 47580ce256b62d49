// Package backend routes accepted writes to a destination: the local
// SQLite store, a hosted chronicle API, or both. The selector owns the
// failover policy; callers just save records.
package backend

import (
	"context"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

// Backend persists session and event records somewhere durable.
type Backend interface {
	// Name identifies the backend in logs and health output.
	Name() string
	SaveSession(ctx context.Context, rec core.SessionRecord) (core.Session, error)
	SaveEvent(ctx context.Context, rec core.EventRecord) (core.Event, error)
	Health(ctx context.Context) error
	Close() error
}
