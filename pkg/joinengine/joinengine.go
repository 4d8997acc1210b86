// Package joinengine defines the collaborator contract for the gateway's
// embedded SQL execution step: registering each secured connector dataset
// as a relation, then running the planner's rewritten SQL against all of
// them together. The interface is the deliverable — concrete engines (see
// memengine) are swappable behind it.
package joinengine

import "context"

// Engine registers relations and executes SQL against the relations
// currently registered on it. A single Engine instance is scoped to one
// request: register every node's data, run one query, then Close.
type Engine interface {
	// RegisterRelation makes rows available under name for the next Query
	// call. columns fixes the relation's schema even when rows is empty,
	// so joins against an entitlement-filtered-to-nothing source still
	// resolve column references instead of failing with "table not found".
	RegisterRelation(name string, rows []map[string]any, columns []string) error

	// Query executes sql against every relation registered so far and
	// returns the result set as rows of column-ordered values plus the
	// column names themselves.
	Query(ctx context.Context, sql string) (rows [][]any, columns []string, err error)

	// Close releases any resources the engine holds. Safe to call more
	// than once.
	Close() error
}
