// Package cache implements the distributed TTL row-set cache: one entry per
// (tenant, connector, filter-fingerprint), with a hard store-level TTL and a
// soft caller-requested freshness bound checked on read.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

const keyPrefix = "cache"

// Cache is a Redis-backed row-set cache scoped per tenant and connector.
type Cache struct {
	rdb *redis.Client
}

// New creates a Cache backed by rdb.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// fingerprint returns a 12-hex-char MD5 digest of filters, canonicalized by
// sorting keys so that semantically equal filter maps — regardless of
// insertion order — produce an identical fingerprint.
func fingerprint(filters map[string]any) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]any, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]any{k, filters[k]})
	}

	canon, _ := json.Marshal(pairs)
	sum := md5.Sum(canon)
	return hex.EncodeToString(sum[:])[:12]
}

func cacheKey(tenantID, connectorID string, filters map[string]any) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, tenantID, connectorID, fingerprint(filters))
}

// Get retrieves cached data for (tenantID, connectorID, filters) if its age
// is within maxStalenessMs. maxStalenessMs == 0 means live-only: always
// return a miss regardless of what's stored. Returns ok=false on any miss,
// decode failure, or staleness-budget violation.
func (c *Cache) Get(ctx context.Context, tenantID, connectorID string, maxStalenessMs int64, filters map[string]any) (data []omnitypes.Row, ageMs int64, ok bool) {
	if maxStalenessMs == 0 {
		return nil, 0, false
	}

	raw, err := c.rdb.Get(ctx, cacheKey(tenantID, connectorID, filters)).Bytes()
	if err != nil {
		return nil, 0, false
	}

	var entry omnitypes.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, 0, false
	}

	age := time.Since(entry.FetchedAt)
	ageMs = age.Milliseconds()
	if ageMs > maxStalenessMs {
		return nil, 0, false
	}

	return entry.Data, ageMs, true
}

// Put stores data with a store-level TTL of max(1s, ttlMs/1000).
func (c *Cache) Put(ctx context.Context, tenantID, connectorID string, data []omnitypes.Row, ttlMs int64, filters map[string]any, etag string) error {
	entry := omnitypes.CacheEntry{
		Data:      data,
		FetchedAt: time.Now(),
		ETag:      etag,
	}

	packed, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	ttl := time.Duration(ttlMs) * time.Millisecond
	if ttl < time.Second {
		ttl = time.Second
	}

	if err := c.rdb.Set(ctx, cacheKey(tenantID, connectorID, filters), packed, ttl).Err(); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Invalidate deletes a specific cache entry.
func (c *Cache) Invalidate(ctx context.Context, tenantID, connectorID string, filters map[string]any) error {
	if err := c.rdb.Del(ctx, cacheKey(tenantID, connectorID, filters)).Err(); err != nil {
		return fmt.Errorf("invalidating cache entry: %w", err)
	}
	return nil
}

// Stats returns the number of cached entries for a tenant, enumerated via a
// cursor-based SCAN (never a blocking KEYS) since this runs on foreground
// request paths.
func (c *Cache) Stats(ctx context.Context, tenantID string) (int, error) {
	pattern := fmt.Sprintf("%s:%s:*", keyPrefix, tenantID)

	var cursor uint64
	var count int
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scanning cache keys: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}
