package auth

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by CredentialStore lookups that find nothing.
var ErrNotFound = errors.New("credential not found")

// TenantRecord is the subset of tenant.Tenant the auth layer needs,
// duplicated here (rather than importing the tenant package) to keep
// this port's surface minimal and avoid a domain-to-domain dependency;
// the outbound store adapter maps tenant.Tenant onto it.
type TenantRecord struct {
	TenantID     string
	Active       bool
	IsSuperAdmin bool
	Email        string
}

// ApplicationRecord is the subset of tenant.Application the auth layer
// needs.
type ApplicationRecord struct {
	ApplicationID string
	TenantID      string
	Active        bool
}

// CredentialStore resolves raw credentials to tenant/application
// records. Implementations: internal/adapter/outbound/store (sqlite).
type CredentialStore interface {
	// GetTenantByAPIKeyHash resolves a tenant-scoped sk-xxai-… key.
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (TenantRecord, error)
	// GetApplicationByAPIKeyHash resolves an application-scoped sk-xxai-… key.
	GetApplicationByAPIKeyHash(ctx context.Context, hash string) (ApplicationRecord, error)
	// GetTenantByDirectModelKeyHash resolves a sk-xxai-model-… key.
	GetTenantByDirectModelKeyHash(ctx context.Context, hash string) (TenantRecord, error)
	// ResolveOrCreateApplicationByExternalID implements the
	// X-OG-Application-ID auto-discovery flow: looks up an Application by
	// (tenantID, externalID), creating one on first use.
	ResolveOrCreateApplicationByExternalID(ctx context.Context, tenantID, externalID string) (ApplicationRecord, error)
}

// JWTIssuer issues and parses the HS256 JWTs used by /auth/login.
type JWTIssuer interface {
	Issue(claims JWTClaims) (string, error)
	Parse(token string) (JWTClaims, error)
}

// DefaultJWTLifetime is the default access token lifetime (1440 minutes).
const DefaultJWTLifetime = 24 * time.Hour
