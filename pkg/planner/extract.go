package planner

import (
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

// extractTableRefs walks a SELECT's FROM clause and returns, in
// first-seen order, every table name present in registry, along with a map
// from table name to the set of aliases (including its own view name) the
// query used to refer to it.
func extractTableRefs(sel *sqlparser.Select, registry map[string]omnitypes.TableEntry) ([]string, map[string]map[string]struct{}, error) {
	var seen []string
	aliasMap := make(map[string]map[string]struct{})

	err := sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		aliased, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok {
			return true, nil
		}
		tn, ok := aliased.Expr.(sqlparser.TableName)
		if !ok {
			return true, nil
		}

		name := tn.Name.String()
		qualifier := tn.Qualifier.String()
		fullName := name
		if qualifier != "" {
			fullName = qualifier + "." + name
		}

		if _, ok := registry[fullName]; !ok {
			return true, nil
		}

		if _, ok := aliasMap[fullName]; !ok {
			seen = append(seen, fullName)
			aliasMap[fullName] = map[string]struct{}{}
		}
		aliasMap[fullName][strings.ReplaceAll(fullName, ".", "_")] = struct{}{}

		if !aliased.As.IsEmpty() {
			aliasMap[fullName][strings.ToLower(aliased.As.String())] = struct{}{}
		}

		return true, nil
	}, sel.From)
	if err != nil {
		return nil, nil, err
	}

	return seen, aliasMap, nil
}

// classifyPredicates splits a SELECT's WHERE clause into simple equality
// predicates on pushable fields belonging to this table (pushdown) versus
// literal equality predicates on other fields, left for post-fetch
// evaluation (duckdbSide). Non-equality predicates land in neither map.
// Predicates qualified
// with another table's alias are excluded entirely — they belong to a
// different FetchNode.
func classifyPredicates(sel *sqlparser.Select, pushable map[string]struct{}, tableAliases map[string]struct{}) (pushdown, duckdbSide map[string]any) {
	pushdown = map[string]any{}
	duckdbSide = map[string]any{}

	if sel.Where == nil {
		return pushdown, duckdbSide
	}

	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		cmp, ok := node.(*sqlparser.ComparisonExpr)
		if !ok || cmp.Operator != sqlparser.EqualStr {
			return true, nil
		}

		col, ok := cmp.Left.(*sqlparser.ColName)
		if !ok {
			return true, nil
		}
		val, ok := literalValue(cmp.Right)
		if !ok {
			return true, nil
		}

		colName := strings.ToLower(col.Name.String())
		qualifier := strings.ToLower(col.Qualifier.Name.String())

		if qualifier != "" {
			if _, belongs := tableAliases[qualifier]; !belongs {
				return true, nil
			}
		}

		if _, ok := pushable[colName]; ok {
			pushdown[colName] = val
		} else {
			duckdbSide[colName] = val
		}
		return true, nil
	}, sel.Where.Expr)

	return pushdown, duckdbSide
}

// literalValue extracts a Go value from a SQL literal expression. Only
// plain string/numeric/boolean literals are recognized — anything else
// (subqueries, function calls, column refs) is not a pushable predicate.
func literalValue(expr sqlparser.Expr) (any, bool) {
	switch v := expr.(type) {
	case *sqlparser.SQLVal:
		switch v.Type {
		case sqlparser.StrVal:
			return string(v.Val), true
		case sqlparser.IntVal, sqlparser.FloatVal:
			return string(v.Val), true
		}
		return nil, false
	case sqlparser.BoolVal:
		return bool(v), true
	default:
		return nil, false
	}
}
