package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/omnisql/gateway/pkg/connector"
	"github.com/omnisql/gateway/pkg/gatewayerr"
	"github.com/omnisql/gateway/pkg/omnitypes"
)

var tracer = otel.Tracer("omnisql.engine")

// NodeFetcher resolves a connector ID to the Base pipeline that serves it.
// The executor never constructs connectors itself — the caller wires the
// tenant's configured connector set.
type NodeFetcher interface {
	Get(connectorID string) (*connector.Base, bool)
}

// staticFetchers is the simplest NodeFetcher: a fixed map handed in by the
// caller, one entry per connector the tenant has configured.
type staticFetchers map[string]*connector.Base

func (m staticFetchers) Get(connectorID string) (*connector.Base, bool) {
	b, ok := m[connectorID]
	return b, ok
}

// NewStaticFetchers builds a NodeFetcher from a fixed connectorID -> Base
// map.
func NewStaticFetchers(m map[string]*connector.Base) NodeFetcher {
	return staticFetchers(m)
}

// Timing captures one node's fetch duration for response metadata.
type Timing struct {
	ConnectorID string
	FetchMs     int64
	FromCache   bool
	Rows        int
	Stale       bool
}

// Execute runs a DAG level by level: Kahn's-algorithm waves computed by
// Levels, each wave fanned out in parallel via errgroup with a hard barrier
// before the next wave starts. If any node in a wave fails, the wave's
// errgroup context is cancelled, and the first error is returned — nodes in
// later waves never start.
func Execute(ctx context.Context, dag *omnitypes.ExecutionDAG, fetchers NodeFetcher, tenantID string, maxStalenessMs int64) (map[string]omnitypes.NodeResult, []Timing, error) {
	levels, err := Levels(dag.Nodes)
	if err != nil {
		return nil, nil, err
	}

	ctx, span := tracer.Start(ctx, "engine.execute_dag", trace.WithAttributes(
		attribute.Int("dag.nodes", len(dag.Nodes)),
		attribute.Int("dag.waves", len(levels)),
	))
	defer span.End()

	results := make(map[string]omnitypes.NodeResult, len(dag.Nodes))
	var timingsMu sync.Mutex
	var timings []Timing

	for _, wave := range levels {
		g, gctx := errgroup.WithContext(ctx)
		var mu sync.Mutex

		for _, node := range wave {
			node := node
			g.Go(func() error {
				result, timing, err := executeNode(gctx, fetchers, node, tenantID, maxStalenessMs)
				if err != nil {
					return err
				}
				mu.Lock()
				results[node.ViewName] = result
				mu.Unlock()
				timingsMu.Lock()
				timings = append(timings, timing)
				timingsMu.Unlock()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	}

	return results, timings, nil
}

func executeNode(ctx context.Context, fetchers NodeFetcher, node *omnitypes.FetchNode, tenantID string, maxStalenessMs int64) (omnitypes.NodeResult, Timing, error) {
	base, ok := fetchers.Get(node.ConnectorID)
	if !ok {
		return omnitypes.NodeResult{}, Timing{}, gatewayerr.New(gatewayerr.SourceFatal,
			fmt.Sprintf("no connector registered for %q", node.ConnectorID))
	}

	ctx, span := tracer.Start(ctx, fmt.Sprintf("engine.fetch.%s", node.ConnectorID), trace.WithAttributes(
		attribute.String("connector.id", node.ConnectorID),
		attribute.String("connector.table", node.TableName),
	))
	defer span.End()

	var filters map[string]any
	if len(node.PushdownFilters) > 0 {
		filters = node.PushdownFilters
	}

	start := time.Now()
	res, err := base.GetData(ctx, tenantID, node.FetchKey, maxStalenessMs, filters)
	if err != nil {
		return omnitypes.NodeResult{}, Timing{}, err
	}
	fetchMs := time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Bool("connector.from_cache", res.FromCache),
		attribute.Int("connector.rows", len(res.Data)),
	)

	return omnitypes.NodeResult{
			ViewName:        node.ViewName,
			Data:            res.Data,
			ConnectorID:     node.ConnectorID,
			FreshnessMs:     res.FreshnessMs,
			FromCache:       res.FromCache,
			Stale:           res.Stale,
			RateLimitStatus: res.RateLimitStatus,
		}, Timing{
			ConnectorID: node.ConnectorID,
			FetchMs:     fetchMs,
			FromCache:   res.FromCache,
			Rows:        len(res.Data),
			Stale:       res.Stale,
		}, nil
}
