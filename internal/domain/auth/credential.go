package auth

import "time"

// CredentialKind is one of the three authentication forms SPEC §4.5
// recognizes.
type CredentialKind string

const (
	CredentialJWT              CredentialKind = "jwt"
	CredentialApplicationAPIKey CredentialKind = "application_api_key"
	CredentialTenantAPIKey      CredentialKind = "tenant_api_key"
	CredentialDirectModelAPIKey CredentialKind = "direct_model_api_key"
)

// KeyPrefix and DirectModelKeyPrefix are the well-known
// prefixes that let the auth layer classify a bearer token before
// attempting any lookup.
const (
	KeyPrefix            = "sk-xxai-"
	DirectModelKeyPrefix = "sk-xxai-model-"
	MinKeyLength         = 20
)

// ClassifyKeyPrefix returns the credential kind implied by a raw key's
// prefix, without validating it against the store. Direct-model keys
// share the sk-xxai- prefix but with an additional "model-" segment, so
// that prefix is checked first.
func ClassifyKeyPrefix(rawKey string) (CredentialKind, bool) {
	switch {
	case len(rawKey) < MinKeyLength:
		return "", false
	case hasPrefix(rawKey, DirectModelKeyPrefix):
		return CredentialDirectModelAPIKey, true
	case hasPrefix(rawKey, KeyPrefix):
		// Disambiguated as application vs. tenant by store lookup, since
		// both share the same wire prefix.
		return CredentialApplicationAPIKey, true
	default:
		return "", false
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Context is the resolved authentication outcome attached to the
// request context by the auth middleware.
type Context struct {
	Kind          CredentialKind
	TenantID      string
	ApplicationID string // empty for tenant/direct-model keys until resolved
	Email         string
	IsSuperAdmin  bool
}

// JWTClaims is the claim set issued by /auth/login, default lifetime 24h.
type JWTClaims struct {
	Subject      string // email
	TenantID     string
	Role         string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}
