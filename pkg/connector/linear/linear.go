// Package linear implements the Linear issue connector: GraphQL-only API in
// production, a small fixed fixture in mock mode.
package linear

import (
	"context"

	"github.com/omnisql/gateway/pkg/connector"
	"github.com/omnisql/gateway/pkg/omnitypes"
)

const issuesQuery = `
query($filter: IssueFilter, $first: Int!, $cursor: String) {
  issues(filter: $filter, first: $first, after: $cursor) {
    nodes {
      id
      title
      state { name }
      assignee { name }
      team { name }
      priority
      createdAt
    }
    pageInfo { endCursor hasNextPage }
  }
}
`

// Connector fetches Linear issues, normalized to the canonical issue row
// schema.
type Connector struct {
	Config    *omnitypes.ConnectorConfig
	Transport *connector.Transport
}

// New builds a Linear connector for cfg.
func New(cfg *omnitypes.ConnectorConfig) *Connector {
	return &Connector{Config: cfg, Transport: connector.NewTransport(cfg)}
}

// FetchData implements connector.Fetcher.
func (c *Connector) FetchData(ctx context.Context, fetchKey string, filters map[string]any) ([]omnitypes.Row, error) {
	if c.Config.BaseURL == "mock" {
		return mockFetch(filters), nil
	}

	linearFilter := map[string]any{}
	if status, ok := filters["status"].(string); ok && status != "" {
		linearFilter["state"] = map[string]any{"name": map[string]any{"eq": status}}
	}

	nodes, err := c.Transport.PaginateGraphQL(ctx, issuesQuery, map[string]any{
		"filter": linearFilter,
		"first":  c.Config.PageSize,
	}, "issues")
	if err != nil {
		return nil, err
	}

	rows := make([]omnitypes.Row, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, normalize(n))
	}
	return rows, nil
}

func normalize(raw map[string]any) omnitypes.Row {
	status := ""
	if s, ok := raw["state"].(map[string]any); ok {
		status, _ = s["name"].(string)
	}
	var assignee any
	if a, ok := raw["assignee"].(map[string]any); ok {
		assignee = a["name"]
	}
	team := ""
	if t, ok := raw["team"].(map[string]any); ok {
		team, _ = t["name"].(string)
	}

	return omnitypes.Row{
		"id":       raw["id"],
		"title":    raw["title"],
		"status":   status,
		"assignee": assignee,
		"team":     team,
		"priority": raw["priority"],
	}
}

func mockFetch(filters map[string]any) []omnitypes.Row {
	rows := []omnitypes.Row{
		{"id": "LIN-1", "title": "Implement YAML Parser", "status": "Todo", "assignee": nil, "team": "platform"},
		{"id": "LIN-2", "title": "Fix OIDC Loop", "status": "In Progress", "assignee": "alice", "team": "infra"},
		{"id": "LIN-3", "title": "Add GraphQL connector", "status": "Done", "assignee": "bob", "team": "core"},
	}

	if status, ok := filters["status"].(string); ok && status != "" {
		filtered := rows[:0:0]
		for _, r := range rows {
			if r["status"] == status {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	return rows
}
