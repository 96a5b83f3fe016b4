package auth

import (
	"context"
	"fmt"
)

// Resolver turns a bearer token (plus optional X-Application-ID /
// X-OG-Application-ID headers) into an auth Context. It is the pure
// decision logic behind the httpmw auth middleware.
type Resolver struct {
	store CredentialStore
	jwt   JWTIssuer
}

// NewResolver builds a Resolver over the given store and JWT issuer.
func NewResolver(store CredentialStore, jwt JWTIssuer) *Resolver {
	return &Resolver{store: store, jwt: jwt}
}

// Resolve classifies and validates rawToken, returning the resolved
// Context. externalAppID is the X-OG-Application-ID header value (empty
// if absent); frontendAppID is the X-Application-ID header value, which
// wins over a JWT's default application when both a JWT and an explicit
// application id are present.
func (r *Resolver) Resolve(ctx context.Context, rawToken, externalAppID, frontendAppID string) (Context, error) {
	if looksLikeJWT(rawToken) {
		return r.resolveJWT(ctx, rawToken, frontendAppID)
	}

	kind, ok := ClassifyKeyPrefix(rawToken)
	if !ok {
		return Context{}, fmt.Errorf("auth: %w", ErrInvalidKey)
	}

	switch kind {
	case CredentialDirectModelAPIKey:
		return r.resolveDirectModelKey(ctx, rawToken)
	default:
		return r.resolveAPIKey(ctx, rawToken, externalAppID)
	}
}

func looksLikeJWT(token string) bool {
	dots := 0
	for _, c := range token {
		if c == '.' {
			dots++
		}
	}
	return dots == 2
}

func (r *Resolver) resolveJWT(ctx context.Context, token, frontendAppID string) (Context, error) {
	claims, err := r.jwt.Parse(token)
	if err != nil {
		return Context{}, fmt.Errorf("auth: invalid jwt: %w", err)
	}
	return Context{
		Kind:          CredentialJWT,
		TenantID:      claims.TenantID,
		ApplicationID: frontendAppID,
		Email:         claims.Subject,
		IsSuperAdmin:  claims.Role == "super_admin",
	}, nil
}

func (r *Resolver) resolveDirectModelKey(ctx context.Context, rawKey string) (Context, error) {
	hash := HashKey(rawKey)
	t, err := r.store.GetTenantByDirectModelKeyHash(ctx, hash)
	if err != nil {
		return Context{}, fmt.Errorf("auth: %w", ErrInvalidKey)
	}
	return Context{Kind: CredentialDirectModelAPIKey, TenantID: t.TenantID, IsSuperAdmin: t.IsSuperAdmin}, nil
}

// resolveAPIKey tries an application-scoped key first (the common case),
// then a tenant-scoped key combined with X-OG-Application-ID
// auto-discovery. Requests bearing X-OG-Application-ID bypass any
// upstream auth cache to avoid cross-app poisoning; that bypass is the
// caller's (httpmw) responsibility, not this resolver's.
func (r *Resolver) resolveAPIKey(ctx context.Context, rawKey, externalAppID string) (Context, error) {
	hash := HashKey(rawKey)

	if app, err := r.store.GetApplicationByAPIKeyHash(ctx, hash); err == nil {
		return Context{Kind: CredentialApplicationAPIKey, TenantID: app.TenantID, ApplicationID: app.ApplicationID}, nil
	}

	t, err := r.store.GetTenantByAPIKeyHash(ctx, hash)
	if err != nil {
		return Context{}, fmt.Errorf("auth: %w", ErrInvalidKey)
	}
	authCtx := Context{Kind: CredentialTenantAPIKey, TenantID: t.TenantID, IsSuperAdmin: t.IsSuperAdmin}
	if externalAppID != "" {
		app, err := r.store.ResolveOrCreateApplicationByExternalID(ctx, t.TenantID, externalAppID)
		if err != nil {
			return Context{}, fmt.Errorf("auth: resolve application: %w", err)
		}
		authCtx.ApplicationID = app.ApplicationID
	}
	return authCtx, nil
}
