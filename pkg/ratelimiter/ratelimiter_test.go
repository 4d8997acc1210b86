package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) *Limiter {
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

func TestConsume_FirstCallAllowed(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	allowed, remaining, err := l.Consume(ctx, "acme", "github", 10, 1.0, 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !allowed {
		t.Fatalf("expected first consume on a full bucket to be allowed")
	}
	if remaining != 9 {
		t.Fatalf("remaining = %d, want 9", remaining)
	}
}

func TestConsume_ExhaustsBucket(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	allowed, _, err := l.Consume(ctx, "acme", "github", 5, 0.001, 5)
	if err != nil || !allowed {
		t.Fatalf("first full-capacity consume should succeed: allowed=%v err=%v", allowed, err)
	}

	allowed, _, err = l.Consume(ctx, "acme", "github", 5, 0.001, 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if allowed {
		t.Fatalf("expected second consume within the refill window to be denied")
	}
}

func TestConsume_IsolatedPerTenantAndConnector(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	if _, _, err := l.Consume(ctx, "acme", "github", 1, 0.001, 1); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	allowed, _, err := l.Consume(ctx, "acme", "jira", 1, 0.001, 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !allowed {
		t.Fatalf("a different connector's bucket should not be affected by github's consumption")
	}

	allowed, _, err = l.Consume(ctx, "other-tenant", "github", 1, 0.001, 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !allowed {
		t.Fatalf("a different tenant's bucket should not be affected by acme's consumption")
	}
}

func TestStatus_EmptyBucketReportsFullCapacity(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	status, err := l.Status(ctx, "acme", "github", 42)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Remaining != 42 || !status.Allowed {
		t.Fatalf("Status = %+v, want full capacity", status)
	}
}

func TestConsume_RefillsOverTime(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	if _, _, err := l.Consume(ctx, "acme", "github", 2, 100.0, 2); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	allowed, _, err := l.Consume(ctx, "acme", "github", 2, 100.0, 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !allowed {
		t.Fatalf("expected refill at 100 tokens/sec to allow a consume after 50ms")
	}
}
