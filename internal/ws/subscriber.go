package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/names"
	"github.com/memyselfandm/chronicle-sub000/internal/pattern"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 100 * time.Millisecond

// subFilters is what a subscribe control message may narrow delivery to.
type subFilters struct {
	EventTypes  []string `json:"event_types,omitempty"`
	ToolPattern string   `json:"tool_pattern,omitempty"`
}

type controlMessage struct {
	Type    string     `json:"type"`
	Filters subFilters `json:"filters,omitempty"`
}

// subscriber is one live connection. The send channel decouples the
// dispatch loop from the socket: all writes go through writePump, so a
// stalled peer backs up its own buffer and nothing else.
type subscriber struct {
	id          string
	label       string
	conn        *websocket.Conn
	send        chan any
	connectedAt time.Time
	sent        atomic.Int64

	// Inbound control frames are rate limited so a chatty client
	// cannot spin the read loop.
	limiter *rate.Limiter

	mu         sync.Mutex
	eventTypes map[core.EventType]bool
	toolGlob   string
	lastPong   time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		id:          uuid.NewString(),
		label:       names.Generate(),
		conn:        conn,
		send:        make(chan any, sendBuffer),
		connectedAt: time.Now(),
		limiter:     rate.NewLimiter(rate.Limit(10), 20),
		closed:      make(chan struct{}),
	}
}

// enqueue hands a message to the writer without blocking. False means
// the buffer is full or the subscriber is closed.
func (s *subscriber) enqueue(msg any) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// wants applies the subscriber's filters to an envelope. No subscribe
// message means everything is wanted.
func (s *subscriber) wants(env core.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.eventTypes) > 0 && !s.eventTypes[env.EventType] {
		return false
	}
	if s.toolGlob != "" && env.ToolName != "" {
		ok, err := pattern.Match(s.toolGlob, env.ToolName)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (s *subscriber) setFilters(f subFilters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventTypes = make(map[core.EventType]bool, len(f.EventTypes))
	for _, raw := range f.EventTypes {
		if typ, ok := core.NormalizeEventType(raw); ok {
			s.eventTypes[typ] = true
		}
	}
	if f.ToolPattern != "" && pattern.Validate(f.ToolPattern) == nil {
		s.toolGlob = f.ToolPattern
	} else {
		s.toolGlob = ""
	}
}

func (s *subscriber) close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close(code, reason)
	})
}

// writePump serializes all socket writes. A single write deadline keeps
// one dead peer from holding the pump for long.
func (s *subscriber) writePump() {
	for {
		select {
		case <-s.closed:
			return
		case msg := <-s.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, s.conn, msg)
			cancel()
			if err != nil {
				s.close(websocket.StatusGoingAway, "write error")
				return
			}
			s.sent.Add(1)
		}
	}
}

// readPump handles inbound control messages until the peer goes away.
func (s *subscriber) readPump(ctx context.Context) {
	for {
		var msg controlMessage
		if err := wsjson.Read(ctx, s.conn, &msg); err != nil {
			return
		}
		if !s.limiter.Allow() {
			log.Printf("ws: %s (%s) over control-message rate, dropping frame", s.label, s.id)
			continue
		}
		switch msg.Type {
		case "subscribe":
			s.setFilters(msg.Filters)
		case "pong":
			s.mu.Lock()
			s.lastPong = time.Now()
			s.mu.Unlock()
		default:
			// Unknown control frames are ignored; the protocol may
			// grow without breaking old daemons.
		}
	}
}
