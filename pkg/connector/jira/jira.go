// Package jira implements the Jira issue connector: REST API v3 with JQL
// pushdown in production, a deterministic in-memory fixture in mock mode.
package jira

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"strings"

	"github.com/omnisql/gateway/pkg/connector"
	"github.com/omnisql/gateway/pkg/omnitypes"
)

// Connector fetches Jira issues, normalized to the canonical issue row
// schema.
type Connector struct {
	Config    *omnitypes.ConnectorConfig
	Transport *connector.Transport
}

// New builds a Jira connector for cfg.
func New(cfg *omnitypes.ConnectorConfig) *Connector {
	return &Connector{Config: cfg, Transport: connector.NewTransport(cfg)}
}

// FetchData implements connector.Fetcher.
func (c *Connector) FetchData(ctx context.Context, fetchKey string, filters map[string]any) ([]omnitypes.Row, error) {
	if c.Config.BaseURL == "mock" {
		return mockFetch(filters), nil
	}

	var jqlParts []string
	if status, ok := filters["status"].(string); ok && status != "" {
		jqlParts = append(jqlParts, fmt.Sprintf(`status = "%s"`, status))
	}
	if project, ok := filters["project"].(string); ok && project != "" {
		jqlParts = append(jqlParts, fmt.Sprintf(`project = "%s"`, strings.ToUpper(project)))
	}
	if priority, ok := filters["priority"].(string); ok && priority != "" {
		jqlParts = append(jqlParts, fmt.Sprintf(`priority = "%s"`, priority))
	}

	jql := "order by created DESC"
	if len(jqlParts) > 0 {
		jql = strings.Join(jqlParts, " AND ")
	}

	params := url.Values{
		"jql":        {jql},
		"maxResults": {strconv.Itoa(c.Config.PageSize)},
		"startAt":    {"0"},
	}

	items, err := c.Transport.PaginateREST(ctx, "/rest/api/3/search", params)
	if err != nil {
		return nil, err
	}

	rows := make([]omnitypes.Row, 0, len(items))
	for _, it := range items {
		rows = append(rows, normalize(it))
	}
	return rows, nil
}

func normalize(raw map[string]any) omnitypes.Row {
	fields, ok := raw["fields"].(map[string]any)
	if !ok {
		fields = raw
	}

	status := ""
	if s, ok := fields["status"].(map[string]any); ok {
		status, _ = s["name"].(string)
	}
	priority := ""
	if p, ok := fields["priority"].(map[string]any); ok {
		priority, _ = p["name"].(string)
	}
	assignee := ""
	if a, ok := fields["assignee"].(map[string]any); ok {
		assignee, _ = a["displayName"].(string)
	}
	project := ""
	if p, ok := fields["project"].(map[string]any); ok {
		project, _ = p["key"].(string)
	}

	storyPoints := fields["story_points"]
	if storyPoints == nil {
		storyPoints = fields["customfield_10016"]
	}

	return omnitypes.Row{
		"issue_key":    raw["key"],
		"summary":      fields["summary"],
		"status":       status,
		"priority":     priority,
		"assignee":     assignee,
		"story_points": storyPoints,
		"branch_name":  fields["customfield_10000"],
		"project":      project,
	}
}

var projects = []string{"MOBILE", "WEB", "API", "INFRA", "DATA"}
var statusChoices = []string{"To Do", "In Progress", "Done", "Blocked"}
var priorities = []string{"High", "Medium", "Low", "Critical"}
var storyPointChoices = []int{1, 2, 3, 5, 8, 13}

func mockFetch(filters map[string]any) []omnitypes.Row {
	rows := mockIssues()

	if status, ok := filters["status"].(string); ok && status != "" {
		filtered := rows[:0:0]
		for _, r := range rows {
			if r["status"] == status {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if project, ok := filters["project"].(string); ok && project != "" {
		filtered := rows[:0:0]
		for _, r := range rows {
			if strings.EqualFold(fmt.Sprint(r["project"]), project) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	return rows
}

func mockIssues() []omnitypes.Row {
	rng := rand.New(rand.NewSource(99))

	rows := make([]omnitypes.Row, 0, 120)
	for i := 1; i <= 120; i++ {
		proj := projects[i%len(projects)]
		status := statusChoices[i%len(statusChoices)]
		rows = append(rows, omnitypes.Row{
			"issue_key":    fmt.Sprintf("PRJ-%03d", i),
			"summary":      fmt.Sprintf("Task %d for %s", i, proj),
			"status":       status,
			"priority":     priorities[i%len(priorities)],
			"assignee":     fmt.Sprintf("lead_%s", strings.ToLower(proj)),
			"story_points": storyPointChoices[rng.Intn(len(storyPointChoices))],
			"branch_name":  fmt.Sprintf("feature/%s/task-%d", strings.ToLower(proj), i),
			"project":      proj,
		})
	}
	return rows
}
