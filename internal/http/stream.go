package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

const (
	streamPollInterval = time.Second
	streamHeartbeat    = 15 * time.Second
	streamBatch        = 100
)

// handleStream serves GET /api/stream: a Server-Sent Events fallback
// for environments where WebSockets are awkward. Each request tails the
// store with its own cursor, so no shared state survives the request.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	cursor, err := s.store.LatestEventID()
	if err != nil {
		log.Printf("http: stream cursor init: %v", err)
		cursor = 0
	}

	poll := time.NewTicker(streamPollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-poll.C:
			events, err := s.store.EventsSince(cursor, streamBatch)
			if err != nil {
				log.Printf("http: stream tail: %v", err)
				continue
			}
			for _, ev := range events {
				payload, err := json.Marshal(core.NewEnvelope(ev))
				if err != nil {
					log.Printf("http: stream marshal: %v", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				cursor = ev.ID
			}
			if len(events) > 0 {
				flusher.Flush()
			}
		}
	}
}
