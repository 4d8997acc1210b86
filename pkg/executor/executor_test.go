package executor

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/omnisql/gateway/pkg/cache"
	"github.com/omnisql/gateway/pkg/connector"
	"github.com/omnisql/gateway/pkg/omnitypes"
	"github.com/omnisql/gateway/pkg/ratelimiter"
)

type stubFetcher struct {
	rows []omnitypes.Row
}

func (f *stubFetcher) FetchData(ctx context.Context, fetchKey string, filters map[string]any) ([]omnitypes.Row, error) {
	return f.rows, nil
}

func testBase(t *testing.T, id string, rows []omnitypes.Row) *connector.Base {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &omnitypes.ConnectorConfig{ID: id, RateLimitCapacity: 50, RateLimitRefillRate: 10, FreshnessTTLMs: 60_000}
	return connector.NewBase(cfg, ratelimiter.New(rdb), cache.New(rdb), &stubFetcher{rows: rows}, slog.Default())
}

func TestExecute_SingleWaveAllNodesComplete(t *testing.T) {
	dag := &omnitypes.ExecutionDAG{
		Nodes: []*omnitypes.FetchNode{
			{ID: "node_github_0", ConnectorID: "github", ViewName: "github_pull_requests", FetchKey: "all"},
			{ID: "node_jira_0", ConnectorID: "jira", ViewName: "jira_issues", FetchKey: "all"},
		},
	}
	fetchers := NewStaticFetchers(map[string]*connector.Base{
		"github": testBase(t, "github", []omnitypes.Row{{"pr_id": "1"}}),
		"jira":   testBase(t, "jira", []omnitypes.Row{{"issue_key": "PRJ-1"}}),
	})

	results, timings, err := Execute(context.Background(), dag, fetchers, "acme", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 node results, got %d", len(results))
	}
	if len(timings) != 2 {
		t.Fatalf("expected 2 timings, got %d", len(timings))
	}
	if results["github_pull_requests"].Data[0]["pr_id"] != "1" {
		t.Fatalf("unexpected github result: %+v", results["github_pull_requests"])
	}
}

func TestExecute_UnregisteredConnectorFails(t *testing.T) {
	dag := &omnitypes.ExecutionDAG{
		Nodes: []*omnitypes.FetchNode{
			{ID: "node_ghost_0", ConnectorID: "ghost", ViewName: "ghost_view"},
		},
	}
	fetchers := NewStaticFetchers(map[string]*connector.Base{})

	_, _, err := Execute(context.Background(), dag, fetchers, "acme", 0)
	if err == nil {
		t.Fatalf("expected an error for an unregistered connector")
	}
}

func TestExecute_CycleFailsBeforeAnyFetch(t *testing.T) {
	dag := &omnitypes.ExecutionDAG{
		Nodes: []*omnitypes.FetchNode{
			{ID: "a", ConnectorID: "github", ViewName: "a", DependsOn: []string{"b"}},
			{ID: "b", ConnectorID: "github", ViewName: "b", DependsOn: []string{"a"}},
		},
	}
	fetchers := NewStaticFetchers(map[string]*connector.Base{
		"github": testBase(t, "github", nil),
	})

	_, _, err := Execute(context.Background(), dag, fetchers, "acme", 0)
	if err == nil {
		t.Fatalf("expected a cycle error")
	}
}
