package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

// State is the selector's current routing decision.
type State int

const (
	NoBackend State = iota
	RemoteActive
	LocalActive
)

func (s State) String() string {
	switch s {
	case RemoteActive:
		return "remote"
	case LocalActive:
		return "local"
	default:
		return "none"
	}
}

// ErrNoBackend is returned when no backend is healthy enough to accept
// the write.
var ErrNoBackend = errors.New("backend: no healthy backend")

// Selector routes writes to the active backend and handles failover.
// The decision is sticky: once pinned, a backend stays active until a
// write against it fails or CheckHealth observes a change. Remote
// writes are always mirrored into Local so the local database is a
// complete record regardless of which side is primary.
type Selector struct {
	mu     sync.Mutex
	remote Backend // nil when no remote is configured
	local  *Local
	state  State
}

// NewSelector builds a selector over an optional remote and the
// required local backend. Call Detect before the first write.
func NewSelector(remote Backend, local *Local) *Selector {
	return &Selector{remote: remote, local: local, state: NoBackend}
}

// Detect probes remote first (when configured), then local, and pins
// the first healthy backend.
func (s *Selector) Detect(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectLocked(ctx)
}

func (s *Selector) detectLocked(ctx context.Context) State {
	if s.remote != nil {
		if err := s.remote.Health(ctx); err == nil {
			s.setStateLocked(RemoteActive)
			return s.state
		} else {
			log.Printf("backend: remote probe failed: %v", err)
		}
	}
	if err := s.local.Health(ctx); err == nil {
		s.setStateLocked(LocalActive)
		return s.state
	} else {
		log.Printf("backend: local probe failed: %v", err)
	}
	s.setStateLocked(NoBackend)
	return s.state
}

func (s *Selector) setStateLocked(next State) {
	if s.state != next {
		log.Printf("backend: %s -> %s", s.state, next)
		s.state = next
	}
}

// State returns the current routing state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CheckHealth re-probes both sides. Unlike write-failure demotion this
// may promote back to remote once it recovers.
func (s *Selector) CheckHealth(ctx context.Context) State {
	return s.Detect(ctx)
}

// SaveSession routes a session write. On remote failure it demotes and
// retries once against local before giving up.
func (s *Selector) SaveSession(ctx context.Context, rec core.SessionRecord) (core.Session, error) {
	state := s.currentOrDetect(ctx)
	switch state {
	case RemoteActive:
		sess, err := s.remote.SaveSession(ctx, rec)
		if err != nil {
			s.demote(fmt.Errorf("session write: %w", err))
			return s.local.SaveSession(ctx, rec)
		}
		if _, mirrorErr := s.local.SaveSession(ctx, rec); mirrorErr != nil {
			log.Printf("backend: mirror session to local: %v", mirrorErr)
		}
		return sess, nil
	case LocalActive:
		return s.local.SaveSession(ctx, rec)
	default:
		return core.Session{}, ErrNoBackend
	}
}

// SaveEvent routes an event write with the same policy as SaveSession.
func (s *Selector) SaveEvent(ctx context.Context, rec core.EventRecord) (core.Event, error) {
	state := s.currentOrDetect(ctx)
	switch state {
	case RemoteActive:
		ev, err := s.remote.SaveEvent(ctx, rec)
		if err != nil {
			s.demote(fmt.Errorf("event write: %w", err))
			return s.local.SaveEvent(ctx, rec)
		}
		if _, mirrorErr := s.local.SaveEvent(ctx, rec); mirrorErr != nil {
			log.Printf("backend: mirror event to local: %v", mirrorErr)
		}
		return ev, nil
	case LocalActive:
		return s.local.SaveEvent(ctx, rec)
	default:
		return core.Event{}, ErrNoBackend
	}
}

// currentOrDetect returns the pinned state, running detection first if
// nothing is pinned yet.
func (s *Selector) currentOrDetect(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == NoBackend {
		return s.detectLocked(ctx)
	}
	return s.state
}

// demote drops from remote to local after a failed remote write.
func (s *Selector) demote(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == RemoteActive {
		log.Printf("backend: remote failed, demoting to local: %v", cause)
		s.setStateLocked(LocalActive)
	}
}

// Close shuts down both backends.
func (s *Selector) Close() error {
	var firstErr error
	if s.remote != nil {
		if err := s.remote.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.local.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
