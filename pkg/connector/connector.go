// Package connector implements the shared fetch pipeline every upstream
// SaaS source runs through: cache check, distributed rate limit, retried
// fetch, cache write-back, and a stale-data fallback when the rate budget is
// exhausted. Individual sources implement only Fetcher.
package connector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/omnisql/gateway/pkg/cache"
	"github.com/omnisql/gateway/pkg/gatewayerr"
	"github.com/omnisql/gateway/pkg/omnitypes"
	"github.com/omnisql/gateway/pkg/ratelimiter"
)

var tracer = otel.Tracer("omnisql.connector")

const (
	maxRetries     = 3
	retryBaseDelay = 500 * time.Millisecond
)

// retryableStatus is the set of HTTP statuses worth retrying; anything else
// (4xx other than 429) fails the fetch immediately.
var retryableStatus = map[int]struct{}{
	429: {}, 500: {}, 502: {}, 503: {}, 504: {},
}

// Fetcher performs the actual upstream call for one connector. A non-nil
// StatusError lets the retry wrapper decide whether the failure is worth
// retrying.
type Fetcher interface {
	FetchData(ctx context.Context, fetchKey string, filters map[string]any) ([]omnitypes.Row, error)
}

// StatusError carries the upstream HTTP status code so the retry wrapper
// can classify retryable vs. fatal failures.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// Result is what Base.GetData produces for one fetch.
type Result struct {
	Data            []omnitypes.Row
	FreshnessMs     int64
	FromCache       bool
	Stale           bool
	RateLimitStatus omnitypes.RateLimitStatus
}

// Base orchestrates cache, rate-limit, retry, and write-back around a
// Fetcher. It holds no connector-specific fetch logic.
type Base struct {
	Config  *omnitypes.ConnectorConfig
	Limiter *ratelimiter.Limiter
	Cache   *cache.Cache
	Fetcher Fetcher
	Logger  *slog.Logger
}

// NewBase wires a Fetcher into the shared pipeline.
func NewBase(cfg *omnitypes.ConnectorConfig, limiter *ratelimiter.Limiter, c *cache.Cache, fetcher Fetcher, logger *slog.Logger) *Base {
	return &Base{Config: cfg, Limiter: limiter, Cache: c, Fetcher: fetcher, Logger: logger.With("connector", cfg.ID)}
}

// GetData orchestrates: cache check -> rate limit -> fetch+retry -> cache
// write-back, falling back to stale cached data (regardless of age) when
// the rate budget is exhausted rather than hard-failing.
func (b *Base) GetData(ctx context.Context, tenantID, fetchKey string, maxStalenessMs int64, filters map[string]any) (Result, error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("connector.%s.get_data", b.Config.ID), trace.WithAttributes(
		attribute.String("connector.id", b.Config.ID),
		attribute.String("connector.fetch_key", fetchKey),
		attribute.Int64("connector.max_staleness_ms", maxStalenessMs),
	))
	defer span.End()

	if data, ageMs, ok := b.Cache.Get(ctx, tenantID, b.Config.ID, maxStalenessMs, filters); ok {
		status, err := b.Limiter.Status(ctx, tenantID, b.Config.ID, b.Config.RateLimitCapacity)
		if err != nil {
			return Result{}, gatewayerr.Wrap(gatewayerr.SourceFatal, "reading rate-limit status", err)
		}
		span.SetAttributes(attribute.Bool("connector.from_cache", true), attribute.Int64("connector.freshness_ms", ageMs))
		return Result{Data: data, FreshnessMs: ageMs, FromCache: true, RateLimitStatus: status}, nil
	}

	allowed, _, err := b.Limiter.Consume(ctx, tenantID, b.Config.ID, b.Config.RateLimitCapacity, b.Config.RateLimitRefillRate, 1)
	if err != nil {
		return Result{}, gatewayerr.Wrap(gatewayerr.SourceFatal, "consuming rate-limit budget", err)
	}
	if !allowed {
		if data, ageMs, ok := b.Cache.Get(ctx, tenantID, b.Config.ID, maxStalenessEternal, filters); ok {
			status, err := b.Limiter.Status(ctx, tenantID, b.Config.ID, b.Config.RateLimitCapacity)
			if err != nil {
				return Result{}, gatewayerr.Wrap(gatewayerr.SourceFatal, "reading rate-limit status", err)
			}
			b.Logger.Warn("rate limit exhausted, returning stale data", "age_ms", ageMs)
			span.SetAttributes(attribute.Bool("connector.stale_fallback", true), attribute.Int64("connector.freshness_ms", ageMs))
			return Result{Data: data, FreshnessMs: ageMs, FromCache: true, Stale: true, RateLimitStatus: status}, nil
		}

		status, _ := b.Limiter.Status(ctx, tenantID, b.Config.ID, b.Config.RateLimitCapacity)
		span.SetAttributes(attribute.Bool("connector.rate_limited", true))
		return Result{}, gatewayerr.New(gatewayerr.RateLimitExhausted,
			fmt.Sprintf("%s: remaining=%d", b.Config.ID, status.Remaining))
	}

	fetchStart := time.Now()
	data, err := b.fetchWithRetry(ctx, fetchKey, filters)
	if err != nil {
		return Result{}, err
	}
	fetchMs := time.Since(fetchStart).Milliseconds()
	span.SetAttributes(
		attribute.Bool("connector.from_cache", false),
		attribute.Int64("connector.fetch_ms", fetchMs),
		attribute.Int("connector.rows_fetched", len(data)),
	)

	if err := b.Cache.Put(ctx, tenantID, b.Config.ID, data, b.Config.FreshnessTTLMs, filters, ""); err != nil {
		b.Logger.Warn("cache write-back failed", "error", err)
	}

	status, err := b.Limiter.Status(ctx, tenantID, b.Config.ID, b.Config.RateLimitCapacity)
	if err != nil {
		return Result{}, gatewayerr.Wrap(gatewayerr.SourceFatal, "reading rate-limit status", err)
	}
	return Result{Data: data, FreshnessMs: fetchMs, FromCache: false, RateLimitStatus: status}, nil
}

// maxStalenessEternal accepts cached data of any age for the stale-fallback
// path — the point is availability over freshness once the budget is gone.
const maxStalenessEternal = int64(1<<63 - 1)

// fetchWithRetry wraps Fetcher.FetchData with exponential-backoff retry:
// up to maxRetries attempts, doubling delay plus up to 10% jitter, retrying
// only on the connector's retryable status codes.
func (b *Base) fetchWithRetry(ctx context.Context, fetchKey string, filters map[string]any) ([]omnitypes.Row, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		attemptCtx, span := tracer.Start(ctx, fmt.Sprintf("connector.%s.fetch_attempt", b.Config.ID),
			trace.WithAttributes(attribute.Int("attempt", attempt+1)))
		data, err := b.Fetcher.FetchData(attemptCtx, fetchKey, filters)
		span.End()
		if err == nil {
			return data, nil
		}

		var statusErr *StatusError
		if se, ok := err.(*StatusError); ok {
			statusErr = se
		}
		if statusErr == nil {
			return nil, gatewayerr.Wrap(gatewayerr.SourceFatal, b.Config.ID, err)
		}
		if _, retryable := retryableStatus[statusErr.Status]; !retryable {
			return nil, gatewayerr.Wrap(gatewayerr.SourceFatal, b.Config.ID, err)
		}

		lastErr = err
		if attempt < maxRetries-1 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt))
			jitter := time.Duration(rand.Int63n(int64(delay) / 10))
			b.Logger.Warn("retryable fetch error", "attempt", attempt+1, "max_retries", maxRetries, "status", statusErr.Status)
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return nil, gatewayerr.Wrap(gatewayerr.SourceTimeout, b.Config.ID, ctx.Err())
			}
		}
	}

	return nil, gatewayerr.Wrap(gatewayerr.SourceTimeout,
		fmt.Sprintf("%s: exhausted %d attempts", b.Config.ID, maxRetries), lastErr)
}
