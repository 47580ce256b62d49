package httpapi

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/auth"
)

// NewRouter assembles the API. The admin guard wraps only the
// destructive subtree; everything else is open on the assumption that
// the daemon binds to localhost.
func NewRouter(svc *Service, adminKey auth.AdminKey, wsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			svc.handleSaveSession(w, r)
		case http.MethodGet:
			svc.handleListSessions(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
	mux.HandleFunc("/api/sessions/", svc.handleSessionSubtree)

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			svc.handleSaveEvent(w, r)
		case http.MethodGet:
			svc.handleListEvents(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/api/metrics/summary", requireGet(svc.handleMetricsSummary))
	mux.HandleFunc("/api/health", requireGet(svc.handleHealth))
	mux.HandleFunc("/api/stream", requireGet(svc.handleStream))

	guard := auth.Guard(adminKey)
	mux.Handle("/api/admin/events/", guard(http.HandlerFunc(svc.handleAdminDeleteEvent)))

	if wsHandler != nil {
		mux.Handle("/ws", wsHandler)
	}

	return logRequests(mux)
}

func requireGet(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	}
}

// logRequests logs each request once it completes. Long-lived streams
// log on disconnect, which doubles as a connection-duration record.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("http: %s %s %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack pass through so the SSE stream and the WebSocket
// upgrade still work behind the logging wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacking not supported")
	}
	return h.Hijack()
}
