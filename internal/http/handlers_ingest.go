package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/memyselfandm/chronicle-sub000/internal/backend"
	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

// handleSaveSession records or updates a session. The response reports
// whether the external id was already known.
func (s *Service) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var rec core.SessionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, lookupErr := s.store.GetSession(rec.SessionID)
	duplicate := lookupErr == nil

	sess, err := s.recorder.SaveSession(r.Context(), rec)
	if err != nil {
		writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"id":        sess.ID,
		"duplicate": duplicate,
	})
}

// handleSaveEvent records a single event. Unknown event types are
// accepted and normalized, never rejected.
func (s *Service) handleSaveEvent(w http.ResponseWriter, r *http.Request) {
	var rec core.EventRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := s.recorder.SaveEvent(r.Context(), rec)
	if err != nil {
		writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"id": ev.ID,
	})
}

func writeRecordError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backend.ErrNoBackend):
		writeError(w, http.StatusServiceUnavailable, "no healthy backend")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
