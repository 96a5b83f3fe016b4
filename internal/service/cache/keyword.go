package cache

import (
	"context"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

// ListSource loads the blacklist/whitelist rows for an application from
// the relational store.
type ListSource interface {
	ListLists(ctx context.Context, applicationID string, kind scanner.ListKind) ([]scanner.List, error)
}

// KeywordCache fronts blacklist/whitelist lookups: application-id ->
// that application's whitelist and blacklist rows (Lists), TTL 300s, invalidated on
// blacklist/whitelist CRUD.
type KeywordCache struct {
	store ListSource
	ttl   *TTLMap
}

// Lists is both kinds of lists for one application, cached together
// since the disposition resolver always needs both.
type Lists struct {
	Whitelists []scanner.List
	Blacklists []scanner.List
}

// NewKeywordCache builds a KeywordCache with the default 300s TTL.
func NewKeywordCache(store ListSource, ttl time.Duration) *KeywordCache {
	return &KeywordCache{store: store, ttl: NewTTLMap(ttl)}
}

// Get returns applicationID's whitelist/blacklist sets, read-through.
func (c *KeywordCache) Get(ctx context.Context, applicationID string) (Lists, error) {
	v, err := c.ttl.Get(ctx, applicationID, func(ctx context.Context) (interface{}, error) {
		white, err := c.store.ListLists(ctx, applicationID, scanner.ListWhitelist)
		if err != nil {
			return nil, err
		}
		black, err := c.store.ListLists(ctx, applicationID, scanner.ListBlacklist)
		if err != nil {
			return nil, err
		}
		return Lists{Whitelists: white, Blacklists: black}, nil
	})
	if err != nil {
		return Lists{}, err
	}
	return v.(Lists), nil
}

// Invalidate evicts applicationID's cached lists after a blacklist/
// whitelist CRUD operation.
func (c *KeywordCache) Invalidate(applicationID string) {
	c.ttl.Invalidate(applicationID)
}
