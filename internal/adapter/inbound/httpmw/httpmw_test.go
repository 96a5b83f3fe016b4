package httpmw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentinelops/gatekeep/internal/apperr"
	"github.com/sentinelops/gatekeep/internal/ctxkey"
	"github.com/sentinelops/gatekeep/internal/domain/auth"
)

func TestWriteError_UsesKindStatusAndRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperr.RateLimited(30, "too many requests"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("expected Retry-After: 30, got %q", got)
	}

	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Type != string(apperr.KindRateLimited) {
		t.Errorf("expected type %q, got %q", apperr.KindRateLimited, body.Error.Type)
	}
}

func TestWriteError_WrapsPlainErrorAsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, context.DeadlineExceeded)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a non-apperr error, got %d", rec.Code)
	}
}

func TestSuperAdminOnly_RejectsMissingAuthContext(t *testing.T) {
	called := false
	handler := SuperAdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/tenants", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Fatal("handler should not run without an auth context")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestSuperAdminOnly_RejectsNonSuperAdmin(t *testing.T) {
	handler := SuperAdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for a non-super-admin tenant")
	}))

	ctx := context.WithValue(context.Background(), ctxkey.AuthContextKey{}, auth.Context{TenantID: "t1", IsSuperAdmin: false})
	req := httptest.NewRequest(http.MethodPost, "/tenants", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestSuperAdminOnly_AllowsSuperAdmin(t *testing.T) {
	called := false
	handler := SuperAdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	ctx := context.WithValue(context.Background(), ctxkey.AuthContextKey{}, auth.Context{TenantID: "t1", IsSuperAdmin: true})
	req := httptest.NewRequest(http.MethodPost, "/tenants", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("handler should run for a super admin")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
