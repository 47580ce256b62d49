package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func guarded(key AdminKey) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Guard(key)(ok)
}

func TestGuardRejectsMissingKey(t *testing.T) {
	h := guarded(NewAdminKey("s3cret"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/events/1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardRejectsWrongKey(t *testing.T) {
	h := guarded(NewAdminKey("s3cret"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/events/1?key=wrong", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardAcceptsQueryParam(t *testing.T) {
	h := guarded(NewAdminKey("s3cret"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/events/1?key=s3cret", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardAcceptsBearer(t *testing.T) {
	h := guarded(NewAdminKey("s3cret"))
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/events/1", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardDisabledWithoutKey(t *testing.T) {
	h := guarded(NewAdminKey(""))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/events/1?key=anything", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGenerateKeyShape(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(key) < 40 {
		t.Fatalf("key too short: %d chars", len(key))
	}
	other, _ := Generate()
	if key == other {
		t.Fatal("two generated keys are identical")
	}
}
