package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/auth"
	"github.com/sentinelops/gatekeep/internal/service/cache"
)

// AuthService resolves bearer tokens to an auth.Context (cached) and
// issues/verifies the JWTs /auth/login hands out, following the
// teacher's APIKeyService/AuthStore split extended with JWT issuance.
type AuthService struct {
	resolver *auth.Resolver
	cache    *cache.AuthCache
	jwt      auth.JWTIssuer
}

// NewAuthService builds an AuthService.
func NewAuthService(store auth.CredentialStore, jwt auth.JWTIssuer, cacheTTL time.Duration) *AuthService {
	resolver := auth.NewResolver(store, jwt)
	return &AuthService{resolver: resolver, cache: cache.NewAuthCache(resolver, cacheTTL), jwt: jwt}
}

// Authenticate resolves rawToken to an auth.Context. Requests bearing
// X-OG-Application-ID bypass the cache (§4.5) since the auto-provision
// path is keyed by that header, not by rawToken alone.
func (s *AuthService) Authenticate(ctx context.Context, rawToken, externalAppID, frontendAppID string) (auth.Context, error) {
	if externalAppID != "" {
		return s.resolver.Resolve(ctx, rawToken, externalAppID, frontendAppID)
	}
	return s.cache.Resolve(ctx, rawToken, frontendAppID)
}

// Login issues a JWT for the given claims (subject=email, tenant id,
// role), called by the /auth/login handler after password verification.
func (s *AuthService) Login(tenantID, email, role string, now time.Time) (string, error) {
	claims := auth.JWTClaims{
		Subject: email, TenantID: tenantID, Role: role,
		IssuedAt: now, ExpiresAt: now.Add(auth.DefaultJWTLifetime),
	}
	token, err := s.jwt.Issue(claims)
	if err != nil {
		return "", fmt.Errorf("service: issue jwt: %w", err)
	}
	return token, nil
}

// InvalidateCache drops every cached auth context, called on user update
// or application change per the §4.9 invalidation column.
func (s *AuthService) InvalidateCache() {
	s.cache.Invalidate()
}
