package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

const defaultQueryLimit = 100

// handleListSessions serves GET /api/sessions with optional active,
// project_path and paging parameters.
func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.SessionFilter{
		ActiveOnly:  q.Get("active") == "true",
		ProjectPath: q.Get("project_path"),
		Limit:       intParam(q.Get("limit"), defaultQueryLimit),
		Offset:      intParam(q.Get("offset"), 0),
	}

	sessions, err := s.store.QuerySessions(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []core.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleSessionSubtree routes /api/sessions/{id} and
// /api/sessions/{id}/events.
func (s *Service) handleSessionSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, sub, _ := strings.Cut(strings.Trim(rest, "/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id required")
		return
	}

	sess, err := s.store.GetSession(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch sub {
	case "":
		writeJSON(w, http.StatusOK, sess)
	case "events":
		limit := intParam(r.URL.Query().Get("limit"), defaultQueryLimit)
		events, err := s.store.GetSessionEvents(sess.ID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if events == nil {
			events = []core.Event{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleListEvents serves GET /api/events with session, type, tool and
// ordering filters.
func (s *Service) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	field, desc, err := storage.ParseOrderBy(q.Get("order_by"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := storage.EventFilter{
		ToolName:   q.Get("tool_name"),
		Limit:      intParam(q.Get("limit"), defaultQueryLimit),
		Offset:     intParam(q.Get("offset"), 0),
		OrderBy:    field,
		Descending: desc,
	}

	if raw := q.Get("event_type"); raw != "" {
		typ := core.EventType(raw)
		if !typ.Valid() {
			writeError(w, http.StatusBadRequest, "unknown event_type "+strconv.Quote(raw))
			return
		}
		filter.EventType = typ
	}

	// session_id accepts either the internal or the external id; events
	// are stored under the internal one.
	if sid := q.Get("session_id"); sid != "" {
		filter.SessionID = sid
		if sess, err := s.store.GetSession(sid); err == nil {
			filter.SessionID = sess.ID
		}
	}

	events, err := s.store.QueryEvents(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
