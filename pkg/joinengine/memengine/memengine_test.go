package memengine

import (
	"context"
	"testing"
)

func TestQuery_SingleRelationStar(t *testing.T) {
	e := New()
	defer e.Close()

	rows := []map[string]any{
		{"pr_id": "1", "status": "open"},
		{"pr_id": "2", "status": "closed"},
	}
	if err := e.RegisterRelation("github_pull_requests", rows, []string{"pr_id", "status"}); err != nil {
		t.Fatalf("RegisterRelation: %v", err)
	}

	got, cols, err := e.Query(context.Background(), "SELECT * FROM github_pull_requests")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %+v", cols)
	}
}

func TestQuery_EqualityFilter(t *testing.T) {
	e := New()
	defer e.Close()

	rows := []map[string]any{
		{"pr_id": "1", "status": "open"},
		{"pr_id": "2", "status": "closed"},
	}
	_ = e.RegisterRelation("github_pull_requests", rows, nil)

	got, _, err := e.Query(context.Background(), "SELECT pr_id FROM github_pull_requests WHERE status = 'open'")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0][0] != "1" {
		t.Fatalf("expected a single filtered row with pr_id 1, got %+v", got)
	}
}

func TestQuery_EmptyRelationWithColumnsResolves(t *testing.T) {
	e := New()
	defer e.Close()

	if err := e.RegisterRelation("github_pull_requests", nil, []string{"pr_id", "status"}); err != nil {
		t.Fatalf("RegisterRelation: %v", err)
	}

	got, cols, err := e.Query(context.Background(), "SELECT pr_id FROM github_pull_requests")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows, got %+v", got)
	}
	if len(cols) != 1 || cols[0] != "pr_id" {
		t.Fatalf("unexpected columns: %+v", cols)
	}
}

func TestQuery_TwoTableEquiJoin(t *testing.T) {
	e := New()
	defer e.Close()

	prs := []map[string]any{
		{"pr_id": "1", "author": "alice"},
		{"pr_id": "2", "author": "bob"},
	}
	issues := []map[string]any{
		{"issue_key": "PRJ-1", "assignee": "alice"},
		{"issue_key": "PRJ-2", "assignee": "carol"},
	}
	_ = e.RegisterRelation("github_pull_requests", prs, nil)
	_ = e.RegisterRelation("jira_issues", issues, nil)

	got, cols, err := e.Query(context.Background(),
		"SELECT gh.pr_id, ji.issue_key FROM github_pull_requests AS gh JOIN jira_issues AS ji ON gh.author = ji.assignee")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one matching join row (alice), got %+v", got)
	}
	if len(cols) != 2 {
		t.Fatalf("expected 2 projected columns, got %+v", cols)
	}
	if got[0][0] != "1" || got[0][1] != "PRJ-1" {
		t.Fatalf("unexpected joined row: %+v", got[0])
	}
}

func TestQuery_UnregisteredRelationFails(t *testing.T) {
	e := New()
	defer e.Close()

	_, _, err := e.Query(context.Background(), "SELECT * FROM ghost_view")
	if err == nil {
		t.Fatalf("expected an error for an unregistered relation")
	}
}
