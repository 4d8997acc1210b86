package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb)
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := map[string]any{"status": "merged", "branch": "main"}
	b := map[string]any{"branch": "main", "status": "merged"}

	if fingerprint(a) != fingerprint(b) {
		t.Fatalf("fingerprints differ for semantically equal filter maps")
	}
}

func TestFingerprint_DifferentValuesDiffer(t *testing.T) {
	a := map[string]any{"status": "merged"}
	b := map[string]any{"status": "open"}

	if fingerprint(a) == fingerprint(b) {
		t.Fatalf("fingerprints should differ for different filter values")
	}
}

func TestPutThenGet_WithinBudgetHits(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	rows := []omnitypes.Row{{"pr_id": "1"}, {"pr_id": "2"}}

	if err := c.Put(ctx, "acme", "github", rows, 60_000, nil, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, ageMs, ok := c.Get(ctx, "acme", "github", 1_000_000, nil)
	if !ok {
		t.Fatalf("expected cache hit after Put")
	}
	if len(data) != 2 {
		t.Fatalf("got %d rows, want 2", len(data))
	}
	if ageMs < 0 || ageMs > 1000 {
		t.Fatalf("age_ms = %d, expected a small age", ageMs)
	}
}

func TestGet_LiveOnlyAlwaysMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	rows := []omnitypes.Row{{"pr_id": "1"}}

	if err := c.Put(ctx, "acme", "github", rows, 60_000, nil, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, _, ok := c.Get(ctx, "acme", "github", 0, nil)
	if ok {
		t.Fatalf("max_staleness_ms=0 must always miss, even with fresh data present")
	}
}

func TestGet_StalerThanBudgetMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	rows := []omnitypes.Row{{"pr_id": "1"}}

	if err := c.Put(ctx, "acme", "github", rows, 60_000, nil, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	_, _, ok := c.Get(ctx, "acme", "github", 5, nil)
	if ok {
		t.Fatalf("expected a miss once age exceeds max_staleness_ms")
	}
}

func TestGet_MissOnAbsentKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, _, ok := c.Get(ctx, "acme", "github", 60_000, nil)
	if ok {
		t.Fatalf("expected a miss on an absent key")
	}
}

func TestStats_CountsEntriesViaScan(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	rows := []omnitypes.Row{{"pr_id": "1"}}

	if err := c.Put(ctx, "acme", "github", rows, 60_000, map[string]any{"status": "open"}, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(ctx, "acme", "jira", rows, 60_000, nil, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(ctx, "other-tenant", "github", rows, 60_000, nil, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n, err := c.Stats(ctx, "acme")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if n != 2 {
		t.Fatalf("Stats(acme) = %d, want 2", n)
	}
}

func TestInvalidate_RemovesEntry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	rows := []omnitypes.Row{{"pr_id": "1"}}

	if err := c.Put(ctx, "acme", "github", rows, 60_000, nil, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Invalidate(ctx, "acme", "github", nil); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	_, _, ok := c.Get(ctx, "acme", "github", 60_000, nil)
	if ok {
		t.Fatalf("expected a miss after Invalidate")
	}
}
