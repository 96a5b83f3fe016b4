package ratelimitstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelops/gatekeep/internal/domain/ratelimit"
)

// gcraScript implements the same Theoretical-Arrival-Time GCRA as Memory,
// but atomically against a single Redis key so it is correct across
// replicas of a horizontally-scaled deployment.
const gcraScript = `
local key = KEYS[1]
local now_ns = tonumber(ARGV[1])
local emission_ns = tonumber(ARGV[2])
local burst_offset_ns = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local tat = tonumber(redis.call("GET", key))
if tat == nil or tat < now_ns then
  tat = now_ns
end

local allow_at = tat - burst_offset_ns
if now_ns < allow_at then
  return {0, allow_at - now_ns, tat - now_ns}
end

local new_tat = tat + emission_ns
if new_tat < now_ns then
  new_tat = now_ns + emission_ns
end
redis.call("SET", key, new_tat, "PX", ttl_ms)
return {1, 0, new_tat - now_ns}
`

// Redis implements ratelimit.RateLimiter against a shared Redis instance,
// for deployments running more than one gateway process behind a load
// balancer where per-process in-memory counters would let each replica
// admit its own full burst.
type Redis struct {
	client *redis.Client
	script *redis.Script
	keyTTL time.Duration
}

// NewRedis builds a Redis-backed rate limiter. keyTTL bounds how long an
// idle key's GCRA state survives; it should exceed the longest configured
// RateLimitConfig.Period in use.
func NewRedis(client *redis.Client, keyTTL time.Duration) *Redis {
	if keyTTL <= 0 {
		keyTTL = time.Hour
	}
	return &Redis{client: client, script: redis.NewScript(gcraScript), keyTTL: keyTTL}
}

// Allow implements ratelimit.RateLimiter using the gcraScript.
func (r *Redis) Allow(ctx context.Context, key string, config ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	if config.Rate <= 0 {
		config.Rate = 1
	}
	emission := config.Period / time.Duration(config.Rate)
	if config.Burst <= 0 {
		config.Burst = config.Rate
	}
	burstOffset := time.Duration(config.Burst) * emission

	now := time.Now().UnixNano()
	res, err := r.script.Run(ctx, r.client, []string{"ratelimit:" + key},
		now, emission.Nanoseconds(), burstOffset.Nanoseconds(), r.keyTTL.Milliseconds()).Result()
	if err != nil {
		return ratelimit.RateLimitResult{}, fmt.Errorf("ratelimitstore: redis gcra: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return ratelimit.RateLimitResult{}, fmt.Errorf("ratelimitstore: unexpected gcra reply: %v", res)
	}
	allowed, _ := vals[0].(int64)
	retryAfterNs, _ := vals[1].(int64)
	resetAfterNs, _ := vals[2].(int64)

	return ratelimit.RateLimitResult{
		Allowed:    allowed == 1,
		RetryAfter: time.Duration(retryAfterNs),
		ResetAfter: time.Duration(resetAfterNs),
	}, nil
}

var _ ratelimit.RateLimiter = (*Redis)(nil)
