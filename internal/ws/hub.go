// Package ws manages live WebSocket subscribers: registration, the
// bounded broadcast queue, per-connection send pumps, heartbeats, and
// slow-consumer eviction. One misbehaving dashboard must never stall
// event capture or any other subscriber.
package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"nhooyr.io/websocket"
)

const (
	queueSize         = 256
	sendBuffer        = 32
	heartbeatInterval = 30 * time.Second
)

// Hub fans incoming envelopes out to every connected subscriber whose
// filters match. Publish never blocks: the queue is bounded and
// overflow is dropped with an accounting log.
type Hub struct {
	mu   sync.Mutex
	subs map[string]*subscriber

	queue   chan core.Envelope
	dropped atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs:  make(map[string]*subscriber),
		queue: make(chan core.Envelope, queueSize),
		done:  make(chan struct{}),
	}
}

// Start launches the dispatch and heartbeat loops.
func (h *Hub) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				h.closeAll()
				return
			case env := <-h.queue:
				h.dispatch(env)
			case <-ticker.C:
				h.heartbeat()
			}
		}
	}()
}

// Stop cancels the loops, closes every connection and waits.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

// Publish enqueues an envelope for delivery. When the queue is full the
// envelope is dropped; subscribers catch up from the store, the daemon
// does not buffer unboundedly on their behalf.
func (h *Hub) Publish(env core.Envelope) {
	select {
	case h.queue <- env:
	default:
		n := h.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			log.Printf("ws: broadcast queue full, dropped %d envelopes so far", n)
		}
	}
}

// ClientCount reports the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports how many envelopes overflowed the broadcast queue.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) dispatch(env core.Envelope) {
	for _, sub := range h.snapshot() {
		if !sub.wants(env) {
			continue
		}
		if !sub.enqueue(env) {
			// A full send buffer means the consumer is not keeping up
			// with its own filter's traffic. Cut it loose.
			log.Printf("ws: disconnecting slow consumer %s (%s)", sub.label, sub.id)
			sub.close(websocket.StatusPolicyViolation, "slow consumer")
			h.unregister(sub)
		}
	}
}

func (h *Hub) heartbeat() {
	ping := map[string]string{"type": "ping"}
	for _, sub := range h.snapshot() {
		if !sub.enqueue(ping) {
			log.Printf("ws: heartbeat undeliverable to %s (%s)", sub.label, sub.id)
			sub.close(websocket.StatusPolicyViolation, "heartbeat undeliverable")
			h.unregister(sub)
		}
	}
}

func (h *Hub) snapshot() []*subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		out = append(out, sub)
	}
	return out
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()
	log.Printf("ws: connect %s (%s), %d clients", sub.label, sub.id, n)
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	_, present := h.subs[sub.id]
	delete(h.subs, sub.id)
	n := len(h.subs)
	h.mu.Unlock()
	if present {
		log.Printf("ws: disconnect %s (%s) after %s, %d messages sent, %d clients left",
			sub.label, sub.id, time.Since(sub.connectedAt).Round(time.Second), sub.sent.Load(), n)
	}
}

func (h *Hub) closeAll() {
	for _, sub := range h.snapshot() {
		sub.close(websocket.StatusGoingAway, "server shutting down")
		h.unregister(sub)
	}
}

// Handler upgrades the request and services the connection until either
// side closes it.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Printf("ws: accept: %v", err)
			return
		}

		sub := newSubscriber(conn)
		h.register(sub)
		defer h.unregister(sub)
		defer sub.close(websocket.StatusNormalClosure, "")

		go sub.writePump()
		sub.enqueue(map[string]any{
			"type":               "connection_established",
			"connection_id":      sub.id,
			"label":              sub.label,
			"heartbeat_interval": heartbeatInterval.String(),
		})

		// The read pump runs on the request goroutine; returning ends
		// the connection.
		sub.readPump(r.Context())
	}
}
