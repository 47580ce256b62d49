// Package httpapi is the daemon's HTTP surface: ingestion, queries,
// metrics, health, the SSE fallback stream and the admin routes.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/backend"
	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

// Recorder is the write path: the backend selector in production.
type Recorder interface {
	SaveSession(ctx context.Context, rec core.SessionRecord) (core.Session, error)
	SaveEvent(ctx context.Context, rec core.EventRecord) (core.Event, error)
	State() backend.State
}

// ConnectionCounter is the slice of the ws hub health reporting needs.
type ConnectionCounter interface {
	ClientCount() int
}

// Optional store capabilities surfaced by /api/health when available.
type schemaVersioner interface {
	SchemaVersion() (int, error)
}

type breakerReporter interface {
	CircuitBreakerState() string
}

type Service struct {
	store     storage.Store
	recorder  Recorder
	conns     ConnectionCounter
	startedAt time.Time
}

func NewService(store storage.Store, recorder Recorder) *Service {
	return &Service{
		store:     store,
		recorder:  recorder,
		startedAt: time.Now(),
	}
}

// WithConnectionCounter wires the ws hub's client count into health
// reporting.
func (s *Service) WithConnectionCounter(c ConnectionCounter) *Service {
	s.conns = c
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
