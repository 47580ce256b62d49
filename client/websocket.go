// WebSocket subscriber for the live event stream.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Envelope is one event as pushed over the stream.
type Envelope struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	ToolName  string         `json:"tool_name,omitempty"`
	Data      map[string]any `json:"data"`
	Category  string         `json:"category,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SubscribeFilters narrows what the server pushes to this connection.
type SubscribeFilters struct {
	EventTypes  []string `json:"event_types,omitempty"`
	ToolPattern string   `json:"tool_pattern,omitempty"`
}

// Subscriber maintains a WebSocket connection to /ws, delivering
// envelopes on a channel and answering server pings transparently.
type Subscriber struct {
	baseURL   string
	filters   SubscribeFilters
	reconnect bool
	buffer    int

	mu      sync.Mutex
	conn    *websocket.Conn
	connID  string
	label   string
	events  chan Envelope
	done    chan struct{}
	closeFn sync.Once
}

// SubOption configures a Subscriber.
type SubOption func(*Subscriber)

// WithFilters sets the subscribe filters sent after each (re)connect.
func WithFilters(f SubscribeFilters) SubOption {
	return func(s *Subscriber) { s.filters = f }
}

// WithReconnect toggles automatic reconnection (default on).
func WithReconnect(enabled bool) SubOption {
	return func(s *Subscriber) { s.reconnect = enabled }
}

// WithBuffer sets the event channel capacity (default 64).
func WithBuffer(n int) SubOption {
	return func(s *Subscriber) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// NewSubscriber creates a Subscriber for the daemon at baseURL
// (http/https; the scheme is translated to ws/wss).
func NewSubscriber(baseURL string, opts ...SubOption) *Subscriber {
	s := &Subscriber{
		baseURL:   baseURL,
		reconnect: true,
		buffer:    64,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan Envelope, s.buffer)
	return s
}

// Events is the stream of envelopes. It is closed when the subscriber
// shuts down for good.
func (s *Subscriber) Events() <-chan Envelope { return s.events }

// ConnectionID returns the server-assigned id for the current
// connection, empty before the first connection_established.
func (s *Subscriber) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Label returns the server-assigned human-readable connection label.
func (s *Subscriber) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// Run connects and pumps events until ctx is cancelled or Close is
// called. With reconnection enabled it retries with doubling backoff
// (1s to 30s); otherwise it returns the first connection error.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.events)
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		err := s.connectAndRead(ctx)
		if err == nil || !s.reconnect {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-time.After(backoff):
		}
		log.Printf("ws client: reconnecting after error: %v", err)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Close stops the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.closeFn.Do(func() {
		close(s.done)
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "client closing")
		}
	})
}

func (s *Subscriber) connectAndRead(ctx context.Context) error {
	wsURL, err := s.buildWSURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close(websocket.StatusInternalError, "read loop exited")

	if len(s.filters.EventTypes) > 0 || s.filters.ToolPattern != "" {
		sub := map[string]any{"type": "subscribe", "filters": s.filters}
		if err := wsjson.Write(ctx, conn, sub); err != nil {
			return fmt.Errorf("send subscribe: %w", err)
		}
	}

	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return fmt.Errorf("websocket read: %w", err)
			}
		}
		s.handleMessage(ctx, conn, raw)
	}
}

// handleMessage routes one inbound frame: control messages carry a
// "type" field, envelopes carry an event_type instead.
func (s *Subscriber) handleMessage(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) {
	var control struct {
		Type              string `json:"type"`
		ConnectionID      string `json:"connection_id"`
		Label             string `json:"label"`
		HeartbeatInterval string `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(raw, &control); err == nil && control.Type != "" {
		switch control.Type {
		case "ping":
			_ = wsjson.Write(ctx, conn, map[string]string{"type": "pong"})
		case "connection_established":
			s.mu.Lock()
			s.connID = control.ConnectionID
			s.label = control.Label
			s.mu.Unlock()
		}
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("ws client: malformed frame: %v", err)
		return
	}
	select {
	case s.events <- env:
	case <-s.done:
	case <-ctx.Done():
	}
}

func (s *Subscriber) buildWSURL() (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	return u.String(), nil
}
