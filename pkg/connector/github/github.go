// Package github implements the GitHub pull-request connector: GraphQL v4
// in production, a deterministic in-memory fixture in mock mode
// (base_url == "mock").
package github

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/omnisql/gateway/pkg/connector"
	"github.com/omnisql/gateway/pkg/omnitypes"
)

const pullRequestsQuery = `
query($owner: String!, $repo: String!, $states: [PullRequestState!], $first: Int!, $cursor: String) {
  repository(owner: $owner, name: $repo) {
    pullRequests(states: $states, first: $first, after: $cursor) {
      nodes {
        number
        title
        author { login }
        headRefName
        state
        createdAt
        mergedAt
        additions
        deletions
        reviewDecision
        assignees(first: 1) { nodes { login } }
      }
      pageInfo { endCursor hasNextPage }
    }
  }
}
`

// Connector fetches GitHub pull requests, normalized to the canonical PR
// row schema every tenant's RLS/CLS rules are written against.
type Connector struct {
	Config    *omnitypes.ConnectorConfig
	Transport *connector.Transport
}

// New builds a GitHub connector for cfg.
func New(cfg *omnitypes.ConnectorConfig) *Connector {
	return &Connector{Config: cfg, Transport: connector.NewTransport(cfg)}
}

// FetchData implements connector.Fetcher.
func (c *Connector) FetchData(ctx context.Context, fetchKey string, filters map[string]any) ([]omnitypes.Row, error) {
	if c.Config.BaseURL == "mock" {
		return mockFetch(filters), nil
	}

	owner := c.Config.ExtraParams["owner"]
	if owner == "" {
		owner = "octocat"
	}
	repo := c.Config.ExtraParams["repo"]
	if repo == "" {
		repo = "hello-world"
	}

	states := []string{"OPEN", "MERGED", "CLOSED"}
	if status, ok := filters["status"].(string); ok {
		switch strings.ToUpper(status) {
		case "OPEN", "MERGED", "CLOSED":
			states = []string{strings.ToUpper(status)}
		}
	}

	nodes, err := c.Transport.PaginateGraphQL(ctx, pullRequestsQuery, map[string]any{
		"owner":  owner,
		"repo":   repo,
		"states": states,
		"first":  c.Config.PageSize,
	}, "repository.pullRequests")
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
	author := ""
	if a, ok := raw["author"].(map[string]any); ok {
		author, _ = a["login"].(string)
	}
	assignee := ""
	if a, ok := raw["assignees"].(map[string]any); ok {
		if nodes, ok := a["nodes"].([]any); ok && len(nodes) > 0 {
			if m, ok := nodes[0].(map[string]any); ok {
				assignee, _ = m["login"].(string)
			}
		}
	}
	number, _ := raw["number"].(float64)
	reviewDecision, _ := raw["reviewDecision"].(string)
	if reviewDecision == "" {
		reviewDecision = "pending"
	}

	return omnitypes.Row{
		"pr_id":         fmt.Sprintf("PR-%03d", int(number)),
		"author":        valueOr(author, "unknown"),
		"author_email":  "",
		"branch":        raw["headRefName"],
		"status":        strings.ToLower(fmt.Sprint(raw["state"])),
		"review_status": strings.ToLower(reviewDecision),
		"team_id":       "",
		"created_at":    raw["createdAt"],
		"assignee":      assignee,
		"additions":     raw["additions"],
		"deletions":     raw["deletions"],
		"merged_at":     raw["mergedAt"],
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

var teams = []string{"mobile", "web", "api", "infra", "data"}
var statuses = []string{"open", "merged", "closed"}

func mockFetch(filters map[string]any) []omnitypes.Row {
	rows := mockPullRequests()

	if status, ok := filters["status"].(string); ok && status != "" {
		filtered := rows[:0:0]
		for _, r := range rows {
			if r["status"] == status {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if teamID, ok := filters["team_id"].(string); ok && teamID != "" {
		filtered := rows[:0:0]
		for _, r := range rows {
			if r["team_id"] == teamID {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	return rows
}

// mockPullRequests generates 120 deterministic fixture rows, seeded so
// repeated calls (and repeated test runs) see identical data.
func mockPullRequests() []omnitypes.Row {
	rng := rand.New(rand.NewSource(42))
	reviewChoices := []string{"approved", "changes_requested", "pending"}

	rows := make([]omnitypes.Row, 0, 120)
	for i := 1; i <= 120; i++ {
		team := teams[i%len(teams)]
		status := statuses[i%len(statuses)]
		var mergedAt any
		if status == "merged" {
			mergedAt = fmt.Sprintf("2024-0%d-15T00:00:00Z", (i%9)+1)
		}
		rows = append(rows, omnitypes.Row{
			"pr_id":         fmt.Sprintf("PR-%03d", i),
			"author":        fmt.Sprintf("dev_%s_%d", team, i%5),
			"author_email":  fmt.Sprintf("dev_%s_%d@company.com", team, i%5),
			"branch":        fmt.Sprintf("feature/%s/task-%d", team, i),
			"status":        status,
			"review_status": reviewChoices[rng.Intn(len(reviewChoices))],
			"team_id":       team,
			"created_at":    fmt.Sprintf("2024-0%d-01T00:00:00Z", (i%9)+1),
			"assignee":      fmt.Sprintf("lead_%s", team),
			"additions":     rng.Intn(491) + 10,
			"deletions":     rng.Intn(196) + 5,
			"merged_at":     mergedAt,
		})
	}
	return rows
}
