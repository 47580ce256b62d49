package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newHubTest(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	hub.Start(context.Background())
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var raw json.RawMessage
	if err := wsjson.Read(ctx, conn, &raw); err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

func TestConnectionEstablished(t *testing.T) {
	hub, url := newHubTest(t)
	conn := dial(t, url)

	hello := readFrame(t, conn)
	if hello["type"] != "connection_established" {
		t.Fatalf("first frame type = %v", hello["type"])
	}
	if id, _ := hello["connection_id"].(string); id == "" {
		t.Fatal("missing connection_id")
	}
	label, _ := hello["label"].(string)
	// adjective-bird-NN
	if parts := strings.Split(label, "-"); len(parts) != 3 {
		t.Fatalf("label %q not in adjective-bird-NN form", label)
	}
	if hello["heartbeat_interval"] != "30s" {
		t.Fatalf("heartbeat_interval = %v", hello["heartbeat_interval"])
	}

	waitForClients(t, hub, 1)
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub, url := newHubTest(t)
	conn := dial(t, url)
	readFrame(t, conn) // connection_established
	waitForClients(t, hub, 1)

	hub.Publish(core.Envelope{
		ID:        7,
		EventType: core.EventToolUse,
		SessionID: "sess-1",
		ToolName:  "Bash",
		Data:      core.Metadata{"command": "ls"},
		Category:  "tool",
	})

	frame := readFrame(t, conn)
	if frame["id"] != float64(7) || frame["event_type"] != "tool_use" {
		t.Fatalf("unexpected envelope: %v", frame)
	}
	if frame["category"] != "tool" {
		t.Fatalf("category missing: %v", frame)
	}
	if _, hasType := frame["type"]; hasType {
		t.Fatalf("envelope must not carry a control type field: %v", frame)
	}
}

func TestSubscribeFiltersDelivery(t *testing.T) {
	hub, url := newHubTest(t)
	conn := dial(t, url)
	readFrame(t, conn)
	waitForClients(t, hub, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub := map[string]any{
		"type": "subscribe",
		"filters": map[string]any{
			"event_types":  []string{"tool_use"},
			"tool_pattern": "mcp__*",
		},
	}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// Give the read pump a beat to apply the filters.
	time.Sleep(50 * time.Millisecond)

	hub.Publish(core.Envelope{ID: 1, EventType: core.EventUserPrompt, SessionID: "s"})
	hub.Publish(core.Envelope{ID: 2, EventType: core.EventToolUse, SessionID: "s", ToolName: "Bash"})
	hub.Publish(core.Envelope{ID: 3, EventType: core.EventToolUse, SessionID: "s", ToolName: "mcp__github__search"})

	frame := readFrame(t, conn)
	if frame["id"] != float64(3) {
		t.Fatalf("filter leaked: got envelope %v", frame)
	}
}

func TestPingAnsweredWithPong(t *testing.T) {
	hub, url := newHubTest(t)
	conn := dial(t, url)
	readFrame(t, conn)
	waitForClients(t, hub, 1)

	// Route a ping through the subscriber's own queue, as the
	// heartbeat loop does.
	for _, sub := range hub.snapshot() {
		sub.enqueue(map[string]string{"type": "ping"})
	}
	frame := readFrame(t, conn)
	if frame["type"] != "ping" {
		t.Fatalf("expected ping, got %v", frame)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, map[string]string{"type": "pong"}); err != nil {
		t.Fatalf("pong: %v", err)
	}
	waitFor(t, func() bool {
		for _, sub := range hub.snapshot() {
			sub.mu.Lock()
			seen := !sub.lastPong.IsZero()
			sub.mu.Unlock()
			if seen {
				return true
			}
		}
		return false
	})
}

func TestClientCountTracksDisconnect(t *testing.T) {
	hub, url := newHubTest(t)
	conn := dial(t, url)
	readFrame(t, conn)
	waitForClients(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "done")
	waitForClients(t, hub, 0)
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub() // not started: nothing drains the queue
	for i := 0; i < queueSize+50; i++ {
		hub.Publish(core.Envelope{ID: int64(i), EventType: core.EventToolUse})
	}
	if got := hub.Dropped(); got != 50 {
		t.Fatalf("dropped = %d, want 50", got)
	}
}

func TestSlowConsumerEvicted(t *testing.T) {
	hub := NewHub()
	ready := make(chan *subscriber, 1)
	// Register a subscriber whose write pump never runs, so its send
	// buffer genuinely fills.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		sub := newSubscriber(conn)
		hub.register(sub)
		ready <- sub
		<-sub.closed
	}))
	defer srv.Close()
	dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	sub := <-ready
	for i := 0; i < sendBuffer; i++ {
		if !sub.enqueue(core.Envelope{ID: int64(i)}) {
			t.Fatalf("buffer full after %d messages, want %d", i, sendBuffer)
		}
	}

	hub.dispatch(core.Envelope{ID: 100, EventType: core.EventToolUse})
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("slow consumer not evicted, %d clients remain", got)
	}
	select {
	case <-sub.closed:
	default:
		t.Fatal("subscriber connection not closed")
	}
}

func TestSubscriberWants(t *testing.T) {
	s := newSubscriber(nil)

	if !s.wants(core.Envelope{EventType: core.EventError}) {
		t.Fatal("fresh subscriber should want everything")
	}

	s.setFilters(subFilters{EventTypes: []string{"tool_use", "PostToolUse", "bogus"}})
	if !s.wants(core.Envelope{EventType: core.EventToolUse}) {
		t.Fatal("allowed type rejected")
	}
	if s.wants(core.Envelope{EventType: core.EventError}) {
		t.Fatal("filtered type allowed")
	}

	s.setFilters(subFilters{ToolPattern: "Read"})
	if s.wants(core.Envelope{EventType: core.EventToolUse, ToolName: "Bash"}) {
		t.Fatal("tool glob should reject Bash")
	}
	if !s.wants(core.Envelope{EventType: core.EventToolUse, ToolName: "Read"}) {
		t.Fatal("tool glob should accept Read")
	}
	if !s.wants(core.Envelope{EventType: core.EventUserPrompt}) {
		t.Fatal("events without a tool name pass a tool glob")
	}
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	waitFor(t, func() bool { return hub.ClientCount() == want })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
