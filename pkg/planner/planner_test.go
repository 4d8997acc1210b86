package planner

import (
	"testing"

	"github.com/omnisql/gateway/pkg/gatewayerr"
	"github.com/omnisql/gateway/pkg/omnitypes"
)

func testTenantCfg() *omnitypes.TenantConfig {
	return &omnitypes.TenantConfig{
		TenantID: "acme",
		ConnectorConfigs: map[string]*omnitypes.ConnectorConfig{
			"github": {ID: "github", PushableFilters: map[string]struct{}{"status": {}, "team_id": {}}},
			"jira":   {ID: "jira", PushableFilters: map[string]struct{}{"status": {}}},
		},
		TableRegistry: map[string]omnitypes.TableEntry{
			"github.pull_requests": {ConnectorID: "github", FetchKey: "pull_requests"},
			"jira.issues":          {ConnectorID: "jira", FetchKey: "issues"},
		},
	}
}

func TestPlan_SingleTableNoFilters(t *testing.T) {
	p := New(testTenantCfg())
	dag, err := p.Plan("SELECT * FROM github.pull_requests")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dag.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(dag.Nodes))
	}
	node := dag.Nodes[0]
	if node.TableName != "github.pull_requests" || node.ViewName != "github_pull_requests" {
		t.Fatalf("unexpected node: %+v", node)
	}
	if node.ConnectorID != "github" || node.FetchKey != "pull_requests" {
		t.Fatalf("unexpected node binding: %+v", node)
	}
}

func TestPlan_RewritesTableNames(t *testing.T) {
	p := New(testTenantCfg())
	dag, err := p.Plan("SELECT * FROM github.pull_requests WHERE status = 'open'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dag.RewrittenSQL != "SELECT * FROM github_pull_requests WHERE status = 'open'" {
		t.Fatalf("unexpected rewrite: %q", dag.RewrittenSQL)
	}
}

func TestPlan_PushdownClassification(t *testing.T) {
	p := New(testTenantCfg())
	dag, err := p.Plan("SELECT * FROM github.pull_requests WHERE status = 'open' AND additions = '5'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	node := dag.Nodes[0]
	if node.PushdownFilters["status"] != "open" {
		t.Fatalf("expected status to be pushed down, got %+v", node.PushdownFilters)
	}
	if _, ok := node.DuckDBFilters["additions"]; !ok {
		t.Fatalf("expected additions to be evaluated post-fetch, got %+v", node.DuckDBFilters)
	}
}

func TestPlan_NoRecognizedTablesFails(t *testing.T) {
	p := New(testTenantCfg())
	_, err := p.Plan("SELECT * FROM unknown.table")
	ge, ok := gatewayerr.As(err)
	if !ok || ge.Kind != gatewayerr.NoRecognizedTables {
		t.Fatalf("expected NoRecognizedTables, got %v", err)
	}
}

func TestPlan_InvalidSQLFails(t *testing.T) {
	p := New(testTenantCfg())
	_, err := p.Plan("SELECT FROM WHERE *** invalid")
	ge, ok := gatewayerr.As(err)
	if !ok || ge.Kind != gatewayerr.InvalidSQL {
		t.Fatalf("expected InvalidSQL, got %v", err)
	}
}

func TestPlan_MultiTableJoinProducesTwoNodes(t *testing.T) {
	p := New(testTenantCfg())
	dag, err := p.Plan("SELECT * FROM github.pull_requests gh JOIN jira.issues ji ON gh.branch = ji.branch_name WHERE gh.status = 'open' AND ji.status = 'Done'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dag.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(dag.Nodes))
	}

	byConnector := map[string]*omnitypes.FetchNode{}
	for _, n := range dag.Nodes {
		byConnector[n.ConnectorID] = n
	}

	ghNode := byConnector["github"]
	if ghNode.PushdownFilters["status"] != "open" {
		t.Fatalf("expected github node status pushdown, got %+v", ghNode.PushdownFilters)
	}
	if _, leaked := ghNode.PushdownFilters["status"]; !leaked {
		t.Fatalf("github node missing its own status filter")
	}

	jiNode := byConnector["jira"]
	if jiNode.PushdownFilters["status"] != "Done" {
		t.Fatalf("expected jira node status pushdown, got %+v", jiNode.PushdownFilters)
	}
}

func TestPlan_AllNodesDependOnNothing(t *testing.T) {
	p := New(testTenantCfg())
	dag, err := p.Plan("SELECT * FROM github.pull_requests gh JOIN jira.issues ji ON gh.branch = ji.branch_name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, n := range dag.Nodes {
		if len(n.DependsOn) != 0 {
			t.Fatalf("expected no dependencies in phase 1, node %s has %v", n.ID, n.DependsOn)
		}
	}
}
