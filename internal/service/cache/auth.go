package cache

import (
	"context"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/auth"
)

// AuthCache fronts auth.Resolver.Resolve with a 300s TTL keyed by raw
// token (not its hash — the resolver already hashes API-key forms
// internally, and JWTs carry no stable hash worth computing twice).
// Requests bearing X-OG-Application-ID must call resolver.Resolve
// directly rather than through this cache (§4.5: "bypass the cache to
// avoid cross-app poisoning").
type AuthCache struct {
	resolver *auth.Resolver
	ttl      *TTLMap
}

// NewAuthCache builds an AuthCache with the default 300s TTL.
func NewAuthCache(resolver *auth.Resolver, ttl time.Duration) *AuthCache {
	return &AuthCache{resolver: resolver, ttl: NewTTLMap(ttl)}
}

// Resolve returns the cached auth.Context for rawToken, populating the
// cache on miss. frontendAppID participates in the lookup key since two
// requests with the same JWT but different X-Application-ID headers
// resolve to different contexts.
func (c *AuthCache) Resolve(ctx context.Context, rawToken, frontendAppID string) (auth.Context, error) {
	key := rawToken + "\x00" + frontendAppID
	v, err := c.ttl.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return c.resolver.Resolve(ctx, rawToken, "", frontendAppID)
	})
	if err != nil {
		return auth.Context{}, err
	}
	return v.(auth.Context), nil
}

// Invalidate evicts every cached context, called on user/application
// update per the §4.9 invalidation column. The cache has no per-token
// index back to the tenant/application that changed, so invalidation is
// process-wide rather than surgical — acceptable since it merely causes
// the next request for each affected token to pay one resolver call.
func (c *AuthCache) Invalidate() {
	c.ttl.mu.Lock()
	defer c.ttl.mu.Unlock()
	c.ttl.entries = make(map[string]entry)
}
