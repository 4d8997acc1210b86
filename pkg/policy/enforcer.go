// Package policy applies row-level and column-level security to a
// connector's fetched rows. Both operations are pure functions over
// (connectorID, rows, SecurityContext) — no shared state, no mutation of the
// input slice.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

// ApplyRLS filters rows to those that satisfy every RLS rule scoped to
// connectorID. A row survives iff all matching rules evaluate true; if no
// rule targets this connector, the rows pass through unchanged.
func ApplyRLS(connectorID string, rows []omnitypes.Row, sc *omnitypes.SecurityContext) []omnitypes.Row {
	rules := rulesFor(sc.TenantCfg.RLSRules, connectorID)
	if len(rules) == 0 {
		return rows
	}

	kept := make([]omnitypes.Row, 0, len(rows))
	for _, row := range rows {
		if rowPasses(rules, row, sc) {
			kept = append(kept, row)
		}
	}
	return kept
}

func rulesFor(rules []omnitypes.RLSRule, connectorID string) []omnitypes.RLSRule {
	var out []omnitypes.RLSRule
	for _, r := range rules {
		if r.ConnectorID == connectorID {
			out = append(out, r)
		}
	}
	return out
}

func rowPasses(rules []omnitypes.RLSRule, row omnitypes.Row, sc *omnitypes.SecurityContext) bool {
	for _, rule := range rules {
		if !EvalString(rule.RuleExpr, row, sc) {
			return false
		}
	}
	return true
}

// ApplyCLS clones every row (the input is never mutated) and, for each
// matching rule whose condition holds, applies that rule's masking action to
// the named column if present.
func ApplyCLS(connectorID string, rows []omnitypes.Row, sc *omnitypes.SecurityContext) []omnitypes.Row {
	rules := clsRulesFor(sc.TenantCfg.CLSRules, connectorID)
	if len(rules) == 0 {
		return rows
	}

	out := make([]omnitypes.Row, len(rows))
	for i, row := range rows {
		clone := make(omnitypes.Row, len(row))
		for k, v := range row {
			clone[k] = v
		}

		for _, rule := range rules {
			if rule.Condition != "" && !EvalString(rule.Condition, clone, sc) {
				continue
			}
			val, present := clone[rule.Column]
			if !present {
				continue
			}
			clone[rule.Column] = applyAction(rule.Action, val)
		}
		out[i] = clone
	}
	return out
}

func clsRulesFor(rules []omnitypes.CLSRule, connectorID string) []omnitypes.CLSRule {
	var out []omnitypes.CLSRule
	for _, r := range rules {
		if r.ConnectorID == connectorID {
			out = append(out, r)
		}
	}
	return out
}

func applyAction(action omnitypes.CLSAction, value any) any {
	switch action {
	case omnitypes.CLSHashHMAC:
		return maskPII(value)
	case omnitypes.CLSBlock:
		return "[HIDDEN]"
	case omnitypes.CLSRedact:
		return "REDACTED"
	default:
		return value
	}
}

// maskPII produces a deterministic 8-hex-char SHA-256 prefix mask suffixed
// with a fixed fake domain, so masked emails stay plausible-looking without
// ever round-tripping to the original value.
func maskPII(value any) string {
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8] + "****@ema.co"
}
