package cache

import (
	"context"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
)

// RiskConfigSource loads one application's sensitivity configuration.
type RiskConfigSource interface {
	GetRiskTypeConfig(ctx context.Context, applicationID string) (policyconf.RiskTypeConfig, error)
}

// RiskConfigCache fronts risk-config lookups, TTL 300s, invalidated on
// risk-config update.
type RiskConfigCache struct {
	store RiskConfigSource
	ttl   *TTLMap
}

// NewRiskConfigCache builds a RiskConfigCache with the default 300s TTL.
func NewRiskConfigCache(store RiskConfigSource, ttl time.Duration) *RiskConfigCache {
	return &RiskConfigCache{store: store, ttl: NewTTLMap(ttl)}
}

// Get returns applicationID's risk config, read-through (falling back
// to policyconf.DefaultRiskTypeConfig at the store layer if unset).
func (c *RiskConfigCache) Get(ctx context.Context, applicationID string) (policyconf.RiskTypeConfig, error) {
	v, err := c.ttl.Get(ctx, applicationID, func(ctx context.Context) (interface{}, error) {
		return c.store.GetRiskTypeConfig(ctx, applicationID)
	})
	if err != nil {
		return policyconf.RiskTypeConfig{}, err
	}
	return v.(policyconf.RiskTypeConfig), nil
}

// Invalidate evicts applicationID's cached risk config after an update.
func (c *RiskConfigCache) Invalidate(applicationID string) {
	c.ttl.Invalidate(applicationID)
}
