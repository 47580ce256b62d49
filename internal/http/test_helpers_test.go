package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memyselfandm/chronicle-sub000/internal/auth"
	"github.com/memyselfandm/chronicle-sub000/internal/backend"
	"github.com/memyselfandm/chronicle-sub000/internal/storage"
)

const testAdminKey = "test-admin-key"

func newTestAPI(t *testing.T) (http.Handler, storage.Store) {
	t.Helper()
	store := storage.NewInMemory()
	sel := backend.NewSelector(nil, backend.NewLocal(store))
	svc := NewService(store, sel)
	return NewRouter(svc, auth.NewAdminKey(testAdminKey), nil), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}
