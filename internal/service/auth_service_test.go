package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/auth"
)

type countingCredentialStore struct {
	resolveOrCreateCalls int32
	tenantLookups         int32
	app                   auth.ApplicationRecord
	tenant                auth.TenantRecord
}

func (s *countingCredentialStore) GetTenantByAPIKeyHash(ctx context.Context, hash string) (auth.TenantRecord, error) {
	atomic.AddInt32(&s.tenantLookups, 1)
	return s.tenant, nil
}
func (s *countingCredentialStore) GetApplicationByAPIKeyHash(ctx context.Context, hash string) (auth.ApplicationRecord, error) {
	return auth.ApplicationRecord{}, context.DeadlineExceeded
}
func (s *countingCredentialStore) GetTenantByDirectModelKeyHash(ctx context.Context, hash string) (auth.TenantRecord, error) {
	return auth.TenantRecord{}, context.DeadlineExceeded
}
func (s *countingCredentialStore) ResolveOrCreateApplicationByExternalID(ctx context.Context, tenantID, externalID string) (auth.ApplicationRecord, error) {
	atomic.AddInt32(&s.resolveOrCreateCalls, 1)
	return s.app, nil
}

type stubJWTIssuer struct{}

func (stubJWTIssuer) Issue(claims auth.JWTClaims) (string, error) { return "signed-jwt", nil }
func (stubJWTIssuer) Parse(token string) (auth.JWTClaims, error) {
	return auth.JWTClaims{}, context.DeadlineExceeded
}

// Authenticate with an explicit X-OG-Application-ID must bypass the
// AuthCache entirely (§4.5 auto-provision path is keyed by that header,
// not by rawToken), so every call reaches the store.
func TestAuthService_Authenticate_ExternalAppIDBypassesCache(t *testing.T) {
	store := &countingCredentialStore{
		tenant: auth.TenantRecord{TenantID: "t1", Active: true},
		app:    auth.ApplicationRecord{ApplicationID: "app1", TenantID: "t1", Active: true},
	}
	svc := NewAuthService(store, stubJWTIssuer{}, time.Minute)

	for i := 0; i < 3; i++ {
		authCtx, err := svc.Authenticate(context.Background(), "sk-xxai-0123456789abcdef", "ext-app", "")
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if authCtx.ApplicationID != "app1" {
			t.Errorf("expected resolved application app1, got %q", authCtx.ApplicationID)
		}
	}
	if store.resolveOrCreateCalls != 3 {
		t.Errorf("expected every externalAppID call to skip the cache and hit the store, ran %d times", store.resolveOrCreateCalls)
	}
}

// Without an externalAppID, repeated Authenticate calls for the same
// rawToken+frontendAppID pair must collapse into the AuthCache.
func TestAuthService_Authenticate_NoExternalAppIDUsesCache(t *testing.T) {
	store := &countingCredentialStore{
		tenant: auth.TenantRecord{TenantID: "t1", Active: true},
	}
	svc := NewAuthService(store, stubJWTIssuer{}, time.Minute)

	rawKey := "sk-xxai-0123456789abcdef"
	for i := 0; i < 3; i++ {
		if _, err := svc.Authenticate(context.Background(), rawKey, "", ""); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
	}
	if store.resolveOrCreateCalls != 0 {
		t.Errorf("expected the plain tenant api-key path not to touch ResolveOrCreateApplicationByExternalID, called %d times", store.resolveOrCreateCalls)
	}
	if store.tenantLookups != 1 {
		t.Errorf("expected 3 calls to collapse into one store lookup, got %d", store.tenantLookups)
	}

	svc.InvalidateCache()
	if _, err := svc.Authenticate(context.Background(), rawKey, "", ""); err != nil {
		t.Fatalf("Authenticate after InvalidateCache: %v", err)
	}
	if store.tenantLookups != 2 {
		t.Errorf("expected InvalidateCache to force a second store lookup, got %d", store.tenantLookups)
	}
}

func TestAuthService_Login_IssuesToken(t *testing.T) {
	svc := NewAuthService(&countingCredentialStore{}, stubJWTIssuer{}, time.Minute)

	token, err := svc.Login("t1", "user@example.com", "member", time.Now())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "signed-jwt" {
		t.Errorf("expected the issuer's token to be returned verbatim, got %q", token)
	}
}
