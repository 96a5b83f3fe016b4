package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/auth"
)

// countingJWTIssuer counts Parse calls so the test can assert the cache,
// not the resolver, is what's deduplicating repeated requests.
type countingJWTIssuer struct {
	parses int32
}

func (c *countingJWTIssuer) Issue(claims auth.JWTClaims) (string, error) {
	panic("not used in this test")
}

func (c *countingJWTIssuer) Parse(token string) (auth.JWTClaims, error) {
	atomic.AddInt32(&c.parses, 1)
	return auth.JWTClaims{Subject: "a@b.com", TenantID: "t1", Role: "member"}, nil
}

type panicCredentialStore struct{}

func (panicCredentialStore) GetTenantByAPIKeyHash(ctx context.Context, hash string) (auth.TenantRecord, error) {
	panic("not used in this test")
}
func (panicCredentialStore) GetApplicationByAPIKeyHash(ctx context.Context, hash string) (auth.ApplicationRecord, error) {
	panic("not used in this test")
}
func (panicCredentialStore) GetTenantByDirectModelKeyHash(ctx context.Context, hash string) (auth.TenantRecord, error) {
	panic("not used in this test")
}
func (panicCredentialStore) ResolveOrCreateApplicationByExternalID(ctx context.Context, tenantID, externalID string) (auth.ApplicationRecord, error) {
	panic("not used in this test")
}

func TestAuthCache_ResolveCachesByTokenAndFrontendAppID(t *testing.T) {
	issuer := &countingJWTIssuer{}
	resolver := auth.NewResolver(panicCredentialStore{}, issuer)
	c := NewAuthCache(resolver, time.Minute)

	token := "header.payload.signature"

	for i := 0; i < 3; i++ {
		ctx, err := c.Resolve(context.Background(), token, "app1")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if ctx.TenantID != "t1" {
			t.Errorf("expected tenant t1, got %q", ctx.TenantID)
		}
	}
	if issuer.parses != 1 {
		t.Errorf("expected the resolver to run once for repeated identical requests, ran %d times", issuer.parses)
	}

	if _, err := c.Resolve(context.Background(), token, "app2"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if issuer.parses != 2 {
		t.Errorf("expected a different frontendAppID to bypass the cached entry, parses=%d", issuer.parses)
	}
}

func TestAuthCache_InvalidateClearsAllEntries(t *testing.T) {
	issuer := &countingJWTIssuer{}
	resolver := auth.NewResolver(panicCredentialStore{}, issuer)
	c := NewAuthCache(resolver, time.Minute)
	token := "header.payload.signature"

	c.Resolve(context.Background(), token, "app1")
	c.Invalidate()
	c.Resolve(context.Background(), token, "app1")

	if issuer.parses != 2 {
		t.Errorf("expected Invalidate to force a fresh resolve, parses=%d", issuer.parses)
	}
}
