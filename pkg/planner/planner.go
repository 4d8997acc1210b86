// Package planner translates a SQL query string into an ExecutionDAG: one
// FetchNode per recognized table, plus the SQL rewritten to reference each
// node's connector-neutral view name. Table and alias extraction, and
// predicate classification, run over a real SQL AST rather than string
// matching, so aliasing, qualification, and quoting are handled correctly.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/omnisql/gateway/pkg/gatewayerr"
	"github.com/omnisql/gateway/pkg/omnitypes"
)

// Planner plans queries against one tenant's table registry and connector
// configuration.
type Planner struct {
	cfg *omnitypes.TenantConfig
}

// New builds a Planner bound to a tenant's configuration snapshot.
func New(cfg *omnitypes.TenantConfig) *Planner {
	return &Planner{cfg: cfg}
}

// Plan parses sql and produces an ExecutionDAG. Every FetchNode's
// depends_on is empty in Phase 1: the planner never infers cross-table
// dependencies, so every node is eligible for the DAG executor's first (and
// only) wave.
func (p *Planner) Plan(sql string) (*omnitypes.ExecutionDAG, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.InvalidSQL, "parsing query", err)
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, gatewayerr.New(gatewayerr.InvalidSQL, "only SELECT statements are supported")
	}

	tableRefs, aliasMap, err := extractTableRefs(sel, p.cfg.TableRegistry)
	if err != nil {
		return nil, err
	}
	if len(tableRefs) == 0 {
		return nil, gatewayerr.New(gatewayerr.NoRecognizedTables,
			fmt.Sprintf("no recognized tables in query; available: %s", availableTables(p.cfg.TableRegistry)))
	}

	dag := &omnitypes.ExecutionDAG{RewrittenSQL: rewriteSQL(sql, tableRefs)}

	for i, tableName := range tableRefs {
		entry, ok := p.cfg.TableRegistry[tableName]
		if !ok {
			return nil, gatewayerr.New(gatewayerr.UnknownTable,
				fmt.Sprintf("unknown table %q; available: %s", tableName, availableTables(p.cfg.TableRegistry)))
		}

		connCfg := p.cfg.ConnectorConfigs[entry.ConnectorID]
		var pushable map[string]struct{}
		if connCfg != nil {
			pushable = connCfg.PushableFilters
		}

		pushdown, duckdbSide := classifyPredicates(sel, pushable, aliasMap[tableName])

		fetchKey := entry.FetchKey
		if fetchKey == "" {
			fetchKey = "all"
		}

		dag.Nodes = append(dag.Nodes, &omnitypes.FetchNode{
			ID:              fmt.Sprintf("node_%s_%d", entry.ConnectorID, i),
			ConnectorID:     entry.ConnectorID,
			FetchKey:        fetchKey,
			TableName:       tableName,
			ViewName:        strings.ReplaceAll(tableName, ".", "_"),
			PushdownFilters: pushdown,
			DuckDBFilters:   duckdbSide,
			DependsOn:       nil,
		})
	}

	return dag, nil
}

func availableTables(registry map[string]omnitypes.TableEntry) string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// rewriteSQL replaces every recognized dotted table name with its
// underscore-joined view name. Table names are validated against the
// registry before this runs, and longer names are replaced first so a
// shorter name can never partially match inside a longer one.
func rewriteSQL(sql string, tableNames []string) string {
	sorted := append([]string(nil), tableNames...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	result := sql
	for _, name := range sorted {
		result = strings.ReplaceAll(result, name, strings.ReplaceAll(name, ".", "_"))
	}
	return result
}
