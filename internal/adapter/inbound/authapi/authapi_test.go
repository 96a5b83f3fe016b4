package authapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/adapter/outbound/jwtauth"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/store"
	"github.com/sentinelops/gatekeep/internal/domain/auth"
	"github.com/sentinelops/gatekeep/internal/domain/tenant"
	"github.com/sentinelops/gatekeep/internal/service"
)

// fakeCredentialStore satisfies auth.CredentialStore with unused methods
// panicking; authapi never calls them directly (AuthService.Login bypasses
// the resolver entirely), but NewAuthService still needs a store value.
type fakeCredentialStore struct{}

func (fakeCredentialStore) GetTenantByAPIKeyHash(ctx context.Context, hash string) (auth.TenantRecord, error) {
	panic("not implemented")
}
func (fakeCredentialStore) GetApplicationByAPIKeyHash(ctx context.Context, hash string) (auth.ApplicationRecord, error) {
	panic("not implemented")
}
func (fakeCredentialStore) GetTenantByDirectModelKeyHash(ctx context.Context, hash string) (auth.TenantRecord, error) {
	panic("not implemented")
}
func (fakeCredentialStore) ResolveOrCreateApplicationByExternalID(ctx context.Context, tenantID, externalID string) (auth.ApplicationRecord, error) {
	panic("not implemented")
}

// fakeTenantStore implements TenantStore in memory.
type fakeTenantStore struct {
	byEmail map[string]tenant.Tenant
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{byEmail: map[string]tenant.Tenant{}}
}

func (f *fakeTenantStore) GetTenantByEmail(ctx context.Context, email string) (tenant.Tenant, error) {
	t, ok := f.byEmail[email]
	if !ok {
		return tenant.Tenant{}, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeTenantStore) CreateTenant(ctx context.Context, t tenant.Tenant, now time.Time) (tenant.Tenant, error) {
	if _, exists := f.byEmail[t.Email]; exists {
		panic("duplicate create in test")
	}
	t.CreatedAt, t.UpdatedAt = now, now
	f.byEmail[t.Email] = t
	return t, nil
}

func newTestHandler() (*Handler, *fakeTenantStore) {
	ts := newFakeTenantStore()
	authSvc := service.NewAuthService(fakeCredentialStore{}, jwtauth.New("test-secret", time.Hour), time.Minute)
	return NewHandler(ts, authSvc), ts
}

func TestRegister_InvalidBody(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@b.com"}`))
	rec := httptest.NewRecorder()
	h.register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing password, got %d", rec.Code)
	}
}

func TestRegister_Success(t *testing.T) {
	h, ts := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@b.com","password":"correcthorsebatterystaple"}`))
	rec := httptest.NewRecorder()
	h.register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, ok := ts.byEmail["a@b.com"]
	if !ok {
		t.Fatal("expected a tenant to be persisted")
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "correcthorsebatterystaple" {
		t.Error("password must be hashed before storage")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h, ts := newTestHandler()
	ts.byEmail["a@b.com"] = tenant.Tenant{ID: "t1", Email: "a@b.com", Active: true}

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@b.com","password":"whatever123"}`))
	rec := httptest.NewRecorder()
	h.register(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a duplicate email, got %d", rec.Code)
	}
}

func TestLogin_InvalidBody(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"nobody@b.com","password":"x"}`))
	rec := httptest.NewRecorder()
	h.login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for an unknown email, got %d", rec.Code)
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	h, ts := newTestHandler()
	ts.byEmail["a@b.com"] = tenant.Tenant{ID: "t1", Email: "a@b.com", Active: false}

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.com","password":"x"}`))
	rec := httptest.NewRecorder()
	h.login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a disabled account, got %d", rec.Code)
	}
}

func TestRegisterThenLogin_RoundTrip(t *testing.T) {
	h, _ := newTestHandler()

	registerReq := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@b.com","password":"correcthorsebatterystaple"}`))
	registerRec := httptest.NewRecorder()
	h.register(registerRec, registerReq)
	if registerRec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", registerRec.Code, registerRec.Body.String())
	}

	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.com","password":"correcthorsebatterystaple"}`))
	loginRec := httptest.NewRecorder()
	h.login(loginRec, loginReq)

	if loginRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", loginRec.Code, loginRec.Body.String())
	}
	if !strings.Contains(loginRec.Body.String(), "token") {
		t.Error("expected a token field in the login response")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h, _ := newTestHandler()

	registerReq := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@b.com","password":"correcthorsebatterystaple"}`))
	registerRec := httptest.NewRecorder()
	h.register(registerRec, registerReq)

	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.com","password":"wrongpassword"}`))
	loginRec := httptest.NewRecorder()
	h.login(loginRec, loginReq)

	if loginRec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a wrong password, got %d", loginRec.Code)
	}
}
