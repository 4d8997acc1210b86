// Package ratelimiter implements a distributed token-bucket rate limiter
// keyed per (tenant, connector), backed by an atomic Redis Lua script so the
// whole fleet shares one budget with no check-then-write race.
package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

// consumeScript reads {tokens, last_refill}, refills to "now", attempts to
// subtract amount, writes the result back, and sets a TTL long enough that
// an idle bucket evicts but an active one never expires mid-flight. All of
// this runs as one atomic Redis command.
const consumeScript = `
local key         = KEYS[1]
local capacity    = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local requested   = tonumber(ARGV[3])
local now         = tonumber(ARGV[4])

local data        = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens      = tonumber(data[1]) or capacity
local last_refill = tonumber(data[2]) or now

local delta   = math.max(0, now - last_refill)
local new_tok = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
if new_tok >= requested then
    new_tok = new_tok - requested
    allowed = 1
end

local ttl = math.ceil((capacity / refill_rate) * 2)
redis.call('HSET', key, 'tokens', tostring(new_tok), 'last_refill', tostring(now))
redis.call('EXPIRE', key, ttl)

return {allowed, math.floor(new_tok)}
`

// Limiter enforces a token-bucket per (tenant, connector) via a shared Redis
// instance.
type Limiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// New creates a Limiter backed by rdb.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb, script: redis.NewScript(consumeScript)}
}

func key(tenantID, connectorID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", tenantID, connectorID)
}

// Consume attempts to take `amount` tokens (1 by default) from the bucket
// for (tenantID, connectorID), refilling it to the current instant first.
// It executes atomically at the store: no caller can observe or act on a
// partial refill-then-consume.
func (l *Limiter) Consume(ctx context.Context, tenantID, connectorID string, capacity int, refillRate float64, amount int) (allowed bool, remaining int, err error) {
	if amount <= 0 {
		amount = 1
	}
	now := float64(time.Now().UnixNano()) / 1e9

	res, err := l.script.Run(ctx, l.rdb, []string{key(tenantID, connectorID)},
		capacity, refillRate, amount, now).Result()
	if err != nil {
		return false, 0, fmt.Errorf("consuming rate-limit tokens: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected rate-limit script result: %v", res)
	}

	allowedInt, _ := vals[0].(int64)
	remainingInt, _ := vals[1].(int64)
	return allowedInt == 1, int(remainingInt), nil
}

// Status is a non-consuming read of the bucket's current state, used only
// for response metadata. It may return a slightly stale value (no refill is
// applied) and need not be atomic.
func (l *Limiter) Status(ctx context.Context, tenantID, connectorID string, capacity int) (omnitypes.RateLimitStatus, error) {
	raw, err := l.rdb.HGet(ctx, key(tenantID, connectorID), "tokens").Result()
	if err == redis.Nil {
		return omnitypes.RateLimitStatus{Capacity: capacity, Remaining: capacity, Allowed: true}, nil
	}
	if err != nil {
		return omnitypes.RateLimitStatus{}, fmt.Errorf("reading rate-limit status: %w", err)
	}

	var tokens float64
	if _, err := fmt.Sscanf(raw, "%g", &tokens); err != nil {
		return omnitypes.RateLimitStatus{}, fmt.Errorf("parsing rate-limit tokens %q: %w", raw, err)
	}

	remaining := int(math.Floor(tokens))
	return omnitypes.RateLimitStatus{
		Capacity:  capacity,
		Remaining: remaining,
		Allowed:   remaining > 0,
	}, nil
}
