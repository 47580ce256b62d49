package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

// handleAdminDeleteEvent removes a single event. The router wraps this
// in the admin-key guard; by the time it runs the caller is trusted.
func (s *Service) handleAdminDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/events/"), "/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "event id must be an integer")
		return
	}

	if err := s.store.DeleteEvent(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
