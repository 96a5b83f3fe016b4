package sessioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
)

// Redis implements the session store against a shared Redis instance, for
// deployments running more than one proxy process where an in-process
// restore-mapping cache would miss whenever process-output lands on a
// different replica than process-input.
type Redis struct {
	client   *redis.Client
	lifetime time.Duration
	prefix   string
}

// NewRedis builds a Redis-backed session cache. lifetime is floored at
// MinLifetime.
func NewRedis(client *redis.Client, lifetime time.Duration) *Redis {
	if lifetime < MinLifetime {
		lifetime = MinLifetime
	}
	return &Redis{client: client, lifetime: lifetime, prefix: "gw-session:"}
}

// Put stores mapping under sessionID with the configured TTL.
func (r *Redis) Put(ctx context.Context, sessionID string, mapping anonymize.RestoreMapping) error {
	b, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("sessioncache: marshal mapping: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+sessionID, b, r.lifetime).Err(); err != nil {
		return fmt.Errorf("sessioncache: redis set: %w", err)
	}
	return nil
}

// Get retrieves the restore mapping for sessionID.
func (r *Redis) Get(ctx context.Context, sessionID string) (anonymize.RestoreMapping, error) {
	b, err := r.client.Get(ctx, r.prefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessioncache: redis get: %w", err)
	}
	var mapping anonymize.RestoreMapping
	if err := json.Unmarshal(b, &mapping); err != nil {
		return nil, fmt.Errorf("sessioncache: unmarshal mapping: %w", err)
	}
	return mapping, nil
}
