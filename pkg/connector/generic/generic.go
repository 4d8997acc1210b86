// Package generic implements the zero-code connector: it serves rows from a
// Go-constructed Manifest of mock data, keyed by fetch key, with optional
// column projections. It makes no upstream REST/GraphQL call, and the
// Manifest has no representation in the tenant config document.
package generic

import (
	"context"
	"strings"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

// TableMapping projects one fetch key's raw rows onto the canonical column
// names a tenant's RLS/CLS rules are written against.
type TableMapping struct {
	Columns map[string]string // canonical column -> "$.sourceField" JSON path
}

// Manifest is the declarative description of a generic connector: mock
// fixtures keyed by fetch key, plus optional column projections per table.
type Manifest struct {
	MockData map[string][]omnitypes.Row
	Tables   []TableMapping
}

// Connector serves rows from a Manifest with no upstream call — it exists
// for tenants whose source is adequately described by static or
// occasionally-refreshed fixture data rather than a bespoke connector.
type Connector struct {
	Config   *omnitypes.ConnectorConfig
	Manifest *Manifest
}

// New builds a generic connector serving manifest's data.
func New(cfg *omnitypes.ConnectorConfig, manifest *Manifest) *Connector {
	return &Connector{Config: cfg, Manifest: manifest}
}

// FetchData implements connector.Fetcher.
func (c *Connector) FetchData(ctx context.Context, fetchKey string, filters map[string]any) ([]omnitypes.Row, error) {
	data := append([]omnitypes.Row(nil), c.Manifest.MockData[fetchKey]...)

	columns := map[string]string{}
	for _, tbl := range c.Manifest.Tables {
		for col, path := range tbl.Columns {
			columns[col] = path
		}
	}
	if len(columns) > 0 {
		projected := make([]omnitypes.Row, 0, len(data))
		for _, row := range data {
			newRow := make(omnitypes.Row, len(columns))
			for col, path := range columns {
				key := strings.TrimPrefix(path, "$.")
				if v, ok := row[key]; ok {
					newRow[col] = v
				} else {
					newRow[col] = row[col]
				}
			}
			projected = append(projected, newRow)
		}
		data = projected
	}

	for field, value := range filters {
		filtered := data[:0:0]
		for _, row := range data {
			if row[field] == value {
				filtered = append(filtered, row)
			}
		}
		data = filtered
	}

	return data, nil
}
