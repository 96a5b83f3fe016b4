// Package tenant holds the account/application entities that every other
// domain package scopes its configuration and data to. Tenant is the
// billing/auth boundary; Application is the unit of detection
// configuration and isolation (policy, scanners, blacklist/whitelist,
// templates, KB, and logs are all keyed by application id, not tenant id).
package tenant

import "time"

// SubscriptionType is the kind of TenantSubscription a tenant holds.
type SubscriptionType string

const (
	SubscriptionFree      SubscriptionType = "free"
	SubscriptionSubscribed SubscriptionType = "subscribed"
)

// Tenant is the account boundary: one tenant owns many Applications and
// exactly one Subscription.
type Tenant struct {
	ID                string
	Email             string
	PasswordHash      string
	Active            bool
	Verified          bool
	IsSuperAdmin      bool
	// TenantAPIKeyHash is the hashed form of the tenant-scoped sk-xxai-…
	// key; it carries only the tenant id and is combined with
	// X-OG-Application-ID to select or auto-create an application.
	TenantAPIKeyHash string
	// DirectModelAPIKeyHash is the hashed form of the optional
	// sk-xxai-model-… key, valid only on /v1/model/*.
	DirectModelAPIKeyHash string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Application is the unit of configuration and isolation for detection.
// All policy, scanners, blacklist/whitelist, templates, KB, and detection
// logs are keyed by ApplicationID, never by TenantID directly.
type Application struct {
	ID            string
	TenantID      string
	Name          string
	APIKeyHash    string
	Active        bool
	ExternalAppID string // the caller-supplied X-OG-Application-ID, when auto-created
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Subscription is the unique-per-tenant monthly quota record.
type Subscription struct {
	TenantID          string
	Type              SubscriptionType
	MonthlyQuota      int
	CurrentMonthUsage int
	UsageResetAt      time.Time
}

// DefaultSubscription returns the Subscription created at tenant
// registration time: free tier, next reset 30 days out.
func DefaultSubscription(tenantID string, now time.Time) Subscription {
	return Subscription{
		TenantID:     tenantID,
		Type:         SubscriptionFree,
		MonthlyQuota: 1000,
		UsageResetAt: now.AddDate(0, 0, 30),
	}
}

// UpstreamAPIConfig is an outbound model endpoint. APIKeyEncrypted is the
// Fernet-equivalent-encrypted upstream credential (see internal/adapter/
// outbound/crypt); it is never logged or serialized to API responses.
type UpstreamAPIConfig struct {
	ID                   string
	TenantID             string
	ConfigName           string
	Provider             string
	BaseURL              string
	APIKeyEncrypted       []byte
	IsDataSafe            bool
	IsDefaultPrivateModel bool
	PrivateModelNames     []string
	BlockOnInputRisk      bool
	BlockOnOutputRisk     bool
}

// MatchType is how a ModelRoute matches an incoming model name.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchPrefix MatchType = "prefix"
)

// ModelRoute routes a requested model name to an UpstreamAPIConfig.
// Higher Priority wins; within equal priority, MatchExact beats
// MatchPrefix; an application-scoped route beats a tenant-global one.
type ModelRoute struct {
	ID                  string
	TenantID            string
	ModelPattern        string
	MatchType           MatchType
	Priority            int
	UpstreamAPIConfigID string
	// ApplicationIDs, when non-empty, restricts this route to those
	// applications (a ModelRouteApplication join); empty means global.
	ApplicationIDs []string
}

// Matches reports whether modelName satisfies this route's pattern.
func (r ModelRoute) Matches(modelName string) bool {
	switch r.MatchType {
	case MatchExact:
		return modelName == r.ModelPattern
	case MatchPrefix:
		return len(modelName) >= len(r.ModelPattern) && modelName[:len(r.ModelPattern)] == r.ModelPattern
	default:
		return false
	}
}

// boundToApplication reports whether this route applies to applicationID,
// treating an empty ApplicationIDs list as "applies to every application".
func (r ModelRoute) boundToApplication(applicationID string) bool {
	if len(r.ApplicationIDs) == 0 {
		return true
	}
	for _, id := range r.ApplicationIDs {
		if id == applicationID {
			return true
		}
	}
	return false
}

// ResolveRoute picks the winning route for modelName among routes scoped
// to applicationID, per the precedence rules: higher priority first,
// exact beats prefix at equal priority, application-specific beats
// global at equal priority and match type. Returns false if no route
// matches.
func ResolveRoute(routes []ModelRoute, applicationID, modelName string) (ModelRoute, bool) {
	var best ModelRoute
	found := false
	for _, r := range routes {
		if !r.Matches(modelName) || !r.boundToApplication(applicationID) {
			continue
		}
		if !found || routeBetter(r, best, applicationID) {
			best = r
			found = true
		}
	}
	return best, found
}

func routeBetter(a, b ModelRoute, applicationID string) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	aExact, bExact := a.MatchType == MatchExact, b.MatchType == MatchExact
	if aExact != bExact {
		return aExact
	}
	aScoped := len(a.ApplicationIDs) > 0
	bScoped := len(b.ApplicationIDs) > 0
	if aScoped != bScoped {
		return aScoped
	}
	return false
}
