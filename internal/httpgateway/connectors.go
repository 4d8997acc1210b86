package httpgateway

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/omnisql/gateway/pkg/cache"
	"github.com/omnisql/gateway/pkg/connector"
	"github.com/omnisql/gateway/pkg/connector/github"
	"github.com/omnisql/gateway/pkg/connector/jira"
	"github.com/omnisql/gateway/pkg/connector/linear"
	"github.com/omnisql/gateway/pkg/omnitypes"
	"github.com/omnisql/gateway/pkg/ratelimiter"
)

// buildFetcher constructs the Fetcher implementation named by cfg.Kind.
// The generic connector is intentionally absent here: it requires a
// Manifest that has no representation in the tenant config document, so it
// is only reachable by a caller that wraps it in a connector.Base and passes
// that to executor.NewStaticFetchers itself, not through this pool.
func buildFetcher(cfg *omnitypes.ConnectorConfig) (connector.Fetcher, error) {
	switch cfg.Kind {
	case "github":
		return github.New(cfg), nil
	case "jira":
		return jira.New(cfg), nil
	case "linear":
		return linear.New(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported connector kind %q for connector %q", cfg.Kind, cfg.ID)
	}
}

// ConnectorPool lazily builds and caches one connector.Base per
// (tenant, connector) pair, so each connector's HTTP transport pool is
// long-lived across requests rather than rebuilt every call.
type ConnectorPool struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu    sync.Mutex
	bases map[string]*connector.Base
}

// NewConnectorPool creates an empty pool backed by rdb.
func NewConnectorPool(rdb *redis.Client, logger *slog.Logger) *ConnectorPool {
	return &ConnectorPool{rdb: rdb, logger: logger, bases: map[string]*connector.Base{}}
}

// Fetchers returns the connector.Base for every connector configured for
// tenantCfg, keyed by connector ID, building and caching each one lazily on
// first use.
func (p *ConnectorPool) Fetchers(tenantCfg *omnitypes.TenantConfig) (map[string]*connector.Base, error) {
	out := make(map[string]*connector.Base, len(tenantCfg.ConnectorConfigs))
	for id, cfg := range tenantCfg.ConnectorConfigs {
		base, err := p.get(tenantCfg.TenantID, cfg)
		if err != nil {
			return nil, err
		}
		out[id] = base
	}
	return out, nil
}

func (p *ConnectorPool) get(tenantID string, cfg *omnitypes.ConnectorConfig) (*connector.Base, error) {
	key := tenantID + ":" + cfg.ID

	p.mu.Lock()
	defer p.mu.Unlock()

	if base, ok := p.bases[key]; ok {
		return base, nil
	}

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		return nil, err
	}

	base := connector.NewBase(cfg, ratelimiter.New(p.rdb), cache.New(p.rdb), fetcher, p.logger)
	p.bases[key] = base
	return base, nil
}
