// Package memengine is a minimal in-process joinengine.Engine: relations
// are plain Go slices of maps, queries run over them via linear scan. It
// supports exactly the SQL shapes the planner ever rewrites into one
// request — a single relation, or a two-relation equi-join — with a
// conjunction of equality predicates in WHERE and a SELECT list of bare or
// table-qualified columns (or *). It is not a general relational engine.
package memengine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xwb1989/sqlparser"
)

type relation struct {
	rows    []map[string]any
	columns []string
}

// Engine is a request-scoped collection of registered relations.
type Engine struct {
	relations map[string]*relation
}

// New creates an empty Engine, scoped to a single request.
func New() *Engine {
	return &Engine{relations: make(map[string]*relation)}
}

// RegisterRelation implements joinengine.Engine.
func (e *Engine) RegisterRelation(name string, rows []map[string]any, columns []string) error {
	cols := columns
	if len(cols) == 0 && len(rows) > 0 {
		cols = columnsOf(rows[0])
	}
	e.relations[name] = &relation{rows: rows, columns: cols}
	return nil
}

// Close implements joinengine.Engine. memengine holds no external
// resources, so Close is a no-op.
func (e *Engine) Close() error { return nil }

func columnsOf(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Query implements joinengine.Engine.
func (e *Engine) Query(ctx context.Context, sql string) ([][]any, []string, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing rewritten query: %w", err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, nil, fmt.Errorf("only SELECT statements are supported")
	}

	rows, aliases, err := e.resolveFrom(sel.From)
	if err != nil {
		return nil, nil, err
	}

	if sel.Where != nil {
		rows = filterWhere(rows, sel.Where.Expr)
	}

	return project(sel.SelectExprs, rows, aliases)
}

// mergedRow is one combined record, holding each column under both its bare
// and its alias-qualified name, so a later projection can resolve
// "alias.column" refs.
type mergedRow map[string]any

func (e *Engine) resolveFrom(from sqlparser.TableExprs) ([]mergedRow, map[string]string, error) {
	if len(from) == 0 {
		return nil, nil, fmt.Errorf("query has no FROM clause")
	}

	switch expr := from[0].(type) {
	case *sqlparser.AliasedTableExpr:
		return e.resolveSingle(expr)
	case *sqlparser.JoinTableExpr:
		return e.resolveJoin(expr)
	default:
		return nil, nil, fmt.Errorf("unsupported FROM clause %T", expr)
	}
}

func (e *Engine) resolveSingle(expr *sqlparser.AliasedTableExpr) ([]mergedRow, map[string]string, error) {
	tn, ok := expr.Expr.(sqlparser.TableName)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported table expression %T", expr.Expr)
	}
	name := tableFullName(tn)
	rel, ok := e.relations[name]
	if !ok {
		return nil, nil, fmt.Errorf("relation %q not registered", name)
	}

	alias := name
	if !expr.As.IsEmpty() {
		alias = strings.ToLower(expr.As.String())
	}

	merged := make([]mergedRow, 0, len(rel.rows))
	for _, row := range rel.rows {
		merged = append(merged, mergeSingle(alias, row))
	}
	return merged, map[string]string{alias: name}, nil
}

// mergeSingle stores each column under both its bare name and its
// alias-qualified name, so WHERE/SELECT can reference either form.
func mergeSingle(alias string, row map[string]any) mergedRow {
	m := make(mergedRow, len(row)*2)
	for k, v := range row {
		m[k] = v
		m[alias+"."+k] = v
	}
	return m
}

func (e *Engine) resolveJoin(expr *sqlparser.JoinTableExpr) ([]mergedRow, map[string]string, error) {
	leftExpr, ok := expr.LeftExpr.(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported left join operand %T", expr.LeftExpr)
	}
	rightExpr, ok := expr.RightExpr.(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported right join operand %T", expr.RightExpr)
	}

	leftRows, leftAliases, err := e.resolveSingle(leftExpr)
	if err != nil {
		return nil, nil, err
	}
	rightRows, rightAliases, err := e.resolveSingle(rightExpr)
	if err != nil {
		return nil, nil, err
	}

	cmp, ok := expr.Condition.On.(*sqlparser.ComparisonExpr)
	if !ok || cmp.Operator != sqlparser.EqualStr {
		return nil, nil, fmt.Errorf("only a single equality join condition is supported")
	}
	leftKey, err := qualifiedColName(cmp.Left)
	if err != nil {
		return nil, nil, err
	}
	rightKey, err := qualifiedColName(cmp.Right)
	if err != nil {
		return nil, nil, err
	}

	index := make(map[any][]mergedRow, len(rightRows))
	for _, r := range rightRows {
		key := r[rightKey]
		index[key] = append(index[key], r)
	}

	var merged []mergedRow
	for _, l := range leftRows {
		for _, r := range index[l[leftKey]] {
			combined := make(mergedRow, len(l)+len(r))
			for k, v := range l {
				combined[k] = v
			}
			for k, v := range r {
				combined[k] = v
			}
			merged = append(merged, combined)
		}
	}

	aliases := make(map[string]string, len(leftAliases)+len(rightAliases))
	for k, v := range leftAliases {
		aliases[k] = v
	}
	for k, v := range rightAliases {
		aliases[k] = v
	}
	return merged, aliases, nil
}

func qualifiedColName(expr sqlparser.Expr) (string, error) {
	col, ok := expr.(*sqlparser.ColName)
	if !ok {
		return "", fmt.Errorf("join condition must compare plain columns")
	}
	name := strings.ToLower(col.Name.String())
	qualifier := strings.ToLower(col.Qualifier.Name.String())
	if qualifier != "" {
		return qualifier + "." + name, nil
	}
	return name, nil
}

func tableFullName(tn sqlparser.TableName) string {
	name := tn.Name.String()
	qualifier := tn.Qualifier.String()
	if qualifier != "" {
		return qualifier + "_" + name
	}
	return name
}

// filterWhere keeps rows that satisfy every top-level AND-ed equality
// predicate. Non-equality operators and nested OR/NOT are treated as
// always-true — the planner only ever pushes equality predicates into the
// rewritten SQL for this engine to re-evaluate.
func filterWhere(rows []mergedRow, expr sqlparser.Expr) []mergedRow {
	preds := flattenAnd(expr)

	out := rows[:0:0]
	for _, row := range rows {
		if matchesAll(row, preds) {
			out = append(out, row)
		}
	}
	return out
}

func flattenAnd(expr sqlparser.Expr) []*sqlparser.ComparisonExpr {
	switch e := expr.(type) {
	case *sqlparser.AndExpr:
		return append(flattenAnd(e.Left), flattenAnd(e.Right)...)
	case *sqlparser.ComparisonExpr:
		return []*sqlparser.ComparisonExpr{e}
	default:
		return nil
	}
}

func matchesAll(row mergedRow, preds []*sqlparser.ComparisonExpr) bool {
	for _, p := range preds {
		if p.Operator != sqlparser.EqualStr {
			continue
		}
		col, ok := p.Left.(*sqlparser.ColName)
		if !ok {
			continue
		}
		val, ok := literalString(p.Right)
		if !ok {
			continue
		}
		name := strings.ToLower(col.Name.String())
		if q := strings.ToLower(col.Qualifier.Name.String()); q != "" {
			name = q + "." + name
		}
		if fmt.Sprint(row[name]) != val {
			return false
		}
	}
	return true
}

func literalString(expr sqlparser.Expr) (string, bool) {
	v, ok := expr.(*sqlparser.SQLVal)
	if !ok {
		return "", false
	}
	return string(v.Val), true
}

// project builds the result set's column order and row values from the
// SELECT list: "*" expands to every column across all merged rows
// (deterministically sorted), anything else is looked up by its (possibly
// qualified) name.
func project(exprs sqlparser.SelectExprs, rows []mergedRow, aliases map[string]string) ([][]any, []string, error) {
	var columns []string
	var getters []func(mergedRow) any

	for _, se := range exprs {
		switch e := se.(type) {
		case *sqlparser.StarExpr:
			columns = bareColumns(rows)
			for _, c := range columns {
				c := c
				getters = append(getters, func(r mergedRow) any { return r[c] })
			}
		case *sqlparser.AliasedExpr:
			name := exprLabel(e)
			col, ok := e.Expr.(*sqlparser.ColName)
			if !ok {
				return nil, nil, fmt.Errorf("unsupported select expression %T", e.Expr)
			}
			key := strings.ToLower(col.Name.String())
			if q := strings.ToLower(col.Qualifier.Name.String()); q != "" {
				key = q + "." + key
			}
			columns = append(columns, name)
			getters = append(getters, func(r mergedRow) any { return r[key] })
		default:
			return nil, nil, fmt.Errorf("unsupported select expression %T", se)
		}
	}

	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		values := make([]any, len(getters))
		for i, get := range getters {
			values[i] = get(row)
		}
		out = append(out, values)
	}
	return out, columns, nil
}

func exprLabel(e *sqlparser.AliasedExpr) string {
	if !e.As.IsEmpty() {
		return e.As.String()
	}
	if col, ok := e.Expr.(*sqlparser.ColName); ok {
		return col.Name.String()
	}
	return sqlparser.String(e.Expr)
}

// bareColumns returns every non-qualified column name present across rows,
// sorted for deterministic output.
func bareColumns(rows []mergedRow) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			if strings.Contains(k, ".") {
				continue
			}
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
