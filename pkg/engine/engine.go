// Package engine implements the federated engine: the per-request pipeline
// that turns one SQL statement into secured, joined rows. It owns no state
// across requests — every call to ExecuteQuery plans, fetches, secures,
// joins, and assembles a response independently, acquiring and closing its
// own join-engine handle.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/omnisql/gateway/pkg/cache"
	"github.com/omnisql/gateway/pkg/executor"
	"github.com/omnisql/gateway/pkg/gatewayerr"
	"github.com/omnisql/gateway/pkg/joinengine"
	"github.com/omnisql/gateway/pkg/omnitypes"
	"github.com/omnisql/gateway/pkg/planner"
	"github.com/omnisql/gateway/pkg/policy"
)

var tracer = otel.Tracer("omnisql.engine")

const (
	warnStaleData         = "STALE_DATA"
	warnEntitlementDenied = "ENTITLEMENT_DENIED"
)

// JoinEngineFactory builds a fresh join-engine handle for one request. A
// factory, not a shared instance, because a join engine is never shared
// across concurrent requests.
type JoinEngineFactory func() joinengine.Engine

// Timing breaks the request's wall-clock time down by pipeline stage.
type Timing struct {
	TotalMs    int64 `json:"total_ms"`
	PlanningMs int64 `json:"planning_ms"`
	FetchMs    int64 `json:"fetch_ms"`
	SecurityMs int64 `json:"security_ms"`
	JoinMs     int64 `json:"join_ms"`
}

// Response is the fully assembled result of one ExecuteQuery call.
type Response struct {
	Rows              [][]any                    `json:"rows"`
	Columns           []string                   `json:"columns"`
	FreshnessMs       int64                      `json:"freshness_ms"`
	RateLimitStatus   omnitypes.RateLimitStatus  `json:"rate_limit_status"`
	CacheStats        int                        `json:"cache_stats"`
	FromCache         bool                       `json:"from_cache"`
	ConnectorTimings  map[string]ConnectorTiming `json:"connector_timings"`
	Warnings          []string                   `json:"warnings,omitempty"`
	Timing            Timing                     `json:"timing"`
}

// ConnectorTiming is the per-connector entry of a response's
// connector_timings map.
type ConnectorTiming struct {
	FetchMs   int64 `json:"fetch_ms"`
	FromCache bool  `json:"from_cache"`
	Rows      int   `json:"rows"`
	Stale     bool  `json:"stale"`
}

// Engine ties the planner, executor, policy enforcer, and join engine
// together into the request pipeline.
type Engine struct {
	fetchers executor.NodeFetcher
	cache    *cache.Cache
	joinNew  JoinEngineFactory
}

// New builds an Engine. fetchers resolves connector IDs to their pipeline
// for every tenant this Engine serves; cache is used only for the
// response's cache_stats metadata, not the fetch path itself (that's
// internal to each connector.Base); joinNew mints one fresh join-engine
// handle per request.
func New(fetchers executor.NodeFetcher, c *cache.Cache, joinNew JoinEngineFactory) *Engine {
	return &Engine{fetchers: fetchers, cache: c, joinNew: joinNew}
}

// ExecuteQuery runs the full plan -> execute -> secure -> join -> respond
// pipeline for one SQL statement on behalf of sc's tenant and identity.
func (e *Engine) ExecuteQuery(ctx context.Context, sc *omnitypes.SecurityContext, sql string, maxStalenessMs int64) (*Response, error) {
	ctx, span := tracer.Start(ctx, "engine.execute_query", trace.WithAttributes(
		attribute.String("tenant.id", sc.TenantID),
		attribute.String("user.id", sc.UserID),
		attribute.Int64("max_staleness_ms", maxStalenessMs),
	))
	defer span.End()

	totalStart := time.Now()

	planStart := time.Now()
	dag, err := e.plan(ctx, sc.TenantCfg, sql)
	if err != nil {
		return nil, err
	}
	planningMs := time.Since(planStart).Milliseconds()

	fetchStart := time.Now()
	nodeResults, timings, err := executor.Execute(ctx, dag, e.fetchers, sc.TenantID, maxStalenessMs)
	if err != nil {
		return nil, err
	}
	fetchMs := time.Since(fetchStart).Milliseconds()

	secStart := time.Now()
	secured, raw, warnings, freshnessMs, rateLimitStatus, fromCache := e.secure(nodeResults, sc)
	securityMs := time.Since(secStart).Milliseconds()

	joinStart := time.Now()
	rows, columns, err := e.join(ctx, secured, raw, dag.RewrittenSQL)
	if err != nil {
		return nil, err
	}
	joinMs := time.Since(joinStart).Milliseconds()

	totalMs := time.Since(totalStart).Milliseconds()
	span.SetAttributes(
		attribute.Int64("engine.total_ms", totalMs),
		attribute.Int64("engine.planning_ms", planningMs),
		attribute.Int64("engine.fetch_ms", fetchMs),
		attribute.Int64("engine.security_ms", securityMs),
		attribute.Int64("engine.join_ms", joinMs),
		attribute.Int("engine.rows_returned", len(rows)),
	)

	cacheStats, _ := e.cache.Stats(ctx, sc.TenantID)

	connectorTimings := make(map[string]ConnectorTiming, len(timings))
	for _, t := range timings {
		connectorTimings[t.ConnectorID] = ConnectorTiming{
			FetchMs:   t.FetchMs,
			FromCache: t.FromCache,
			Rows:      t.Rows,
			Stale:     t.Stale,
		}
	}

	return &Response{
		Rows:             rows,
		Columns:          columns,
		FreshnessMs:      freshnessMs,
		RateLimitStatus:  rateLimitStatus,
		CacheStats:       cacheStats,
		FromCache:        fromCache,
		ConnectorTimings: connectorTimings,
		Warnings:         warnings,
		Timing: Timing{
			TotalMs:    totalMs,
			PlanningMs: planningMs,
			FetchMs:    fetchMs,
			SecurityMs: securityMs,
			JoinMs:     joinMs,
		},
	}, nil
}

func (e *Engine) plan(ctx context.Context, cfg *omnitypes.TenantConfig, sql string) (*omnitypes.ExecutionDAG, error) {
	_, span := tracer.Start(ctx, "engine.plan")
	defer span.End()
	return planner.New(cfg).Plan(sql)
}

// secure applies RLS then CLS to every node's result and aggregates the
// response-level freshness, warnings, rate-limit status and from_cache
// flag in the same pass.
func (e *Engine) secure(nodeResults map[string]omnitypes.NodeResult, sc *omnitypes.SecurityContext) (secured, raw map[string][]omnitypes.Row, warnings []string, freshnessMs int64, rateLimitStatus omnitypes.RateLimitStatus, fromCache bool) {
	secured = make(map[string][]omnitypes.Row, len(nodeResults))
	raw = make(map[string][]omnitypes.Row, len(nodeResults))
	fromCache = true
	seen := make(map[string]struct{})

	addWarning := func(w string) {
		if _, ok := seen[w]; ok {
			return
		}
		seen[w] = struct{}{}
		warnings = append(warnings, w)
	}

	for viewName, result := range nodeResults {
		if result.FreshnessMs > freshnessMs {
			freshnessMs = result.FreshnessMs
		}
		rateLimitStatus = result.RateLimitStatus
		if result.Stale {
			addWarning(warnStaleData)
		}
		if !result.FromCache {
			fromCache = false
		}

		raw[viewName] = result.Data
		rawCount := len(result.Data)

		data := policy.ApplyRLS(result.ConnectorID, result.Data, sc)
		data = policy.ApplyCLS(result.ConnectorID, data, sc)
		secured[viewName] = data

		if rawCount > 0 && len(data) == 0 {
			addWarning(warnEntitlementDenied)
		}
	}

	return secured, raw, warnings, freshnessMs, rateLimitStatus, fromCache
}

// join registers each secured view as a relation and runs the planner's
// rewritten SQL against them. A view emptied entirely by RLS is still
// registered, with its columns inferred from the pre-RLS data, so a join
// referencing it resolves column names instead of failing outright.
func (e *Engine) join(ctx context.Context, secured, raw map[string][]omnitypes.Row, rewrittenSQL string) ([][]any, []string, error) {
	_, span := tracer.Start(ctx, "engine.join")
	defer span.End()

	je := e.joinNew()
	defer je.Close()

	for viewName, data := range secured {
		rows := toPlainRows(data)
		var columns []string
		if len(rows) == 0 {
			if rawRows := raw[viewName]; len(rawRows) > 0 {
				columns = columnNames(rawRows[0])
			}
		}
		if err := je.RegisterRelation(viewName, rows, columns); err != nil {
			return nil, nil, gatewayerr.Wrap(gatewayerr.JoinEngineError, fmt.Sprintf("registering relation %q", viewName), err)
		}
	}

	rows, columns, err := je.Query(ctx, rewrittenSQL)
	if err != nil {
		return nil, nil, gatewayerr.Wrap(gatewayerr.JoinEngineError, "executing rewritten query", err)
	}
	return rows, columns, nil
}

func toPlainRows(rows []omnitypes.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}

func columnNames(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	return cols
}
