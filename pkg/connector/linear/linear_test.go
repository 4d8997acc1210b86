package linear

import (
	"context"
	"testing"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

func mockConfig() *omnitypes.ConnectorConfig {
	return &omnitypes.ConnectorConfig{ID: "linear", BaseURL: "mock", PageSize: 50}
}

func TestFetchData_MockReturnsFixture(t *testing.T) {
	c := New(mockConfig())
	rows, err := c.FetchData(context.Background(), "issues", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 fixture issues, got %d", len(rows))
	}
}

func TestFetchData_StatusFilter(t *testing.T) {
	c := New(mockConfig())
	rows, _ := c.FetchData(context.Background(), "issues", map[string]any{"status": "Done"})

	if len(rows) != 1 || rows[0]["id"] != "LIN-3" {
		t.Fatalf("expected exactly LIN-3, got %+v", rows)
	}
}
