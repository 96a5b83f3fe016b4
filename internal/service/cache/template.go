package cache

import (
	"context"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
)

// TemplateSource loads one response template row.
type TemplateSource interface {
	GetResponseTemplate(ctx context.Context, applicationID string, identifierType policyconf.ScannerIdentifierType, identifier string) (*policyconf.Template, error)
}

// TemplateCache fronts response-template lookups, TTL 600s, invalidated
// on template CRUD. Keyed by applicationID+identifierType+identifier
// since that triple is the template's natural primary key (invariant 2).
type TemplateCache struct {
	store TemplateSource
	ttl   *TTLMap
}

// NewTemplateCache builds a TemplateCache with the default 600s TTL.
func NewTemplateCache(store TemplateSource, ttl time.Duration) *TemplateCache {
	return &TemplateCache{store: store, ttl: NewTTLMap(ttl)}
}

// Get returns the template for (applicationID, identifierType,
// identifier), or nil if none is configured.
func (c *TemplateCache) Get(ctx context.Context, applicationID string, identifierType policyconf.ScannerIdentifierType, identifier string) (*policyconf.Template, error) {
	key := applicationID + "\x00" + string(identifierType) + "\x00" + identifier
	v, err := c.ttl.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return c.store.GetResponseTemplate(ctx, applicationID, identifierType, identifier)
	})
	if err != nil {
		return nil, err
	}
	return v.(*policyconf.Template), nil
}

// Invalidate evicts every cached template for applicationID after a
// template CRUD operation.
func (c *TemplateCache) Invalidate(applicationID string) {
	c.ttl.InvalidatePrefix(applicationID + "\x00")
}
