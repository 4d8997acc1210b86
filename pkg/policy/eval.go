package policy

import (
	"fmt"
	"strings"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

// userAttr resolves a SecurityContext attribute by name, mirroring the
// user-input fields the expression grammar can reference.
func userAttr(sc *omnitypes.SecurityContext, name string) (any, bool) {
	switch name {
	case "user_id":
		return sc.UserID, true
	case "email":
		return sc.Email, true
	case "role":
		return sc.Role, true
	case "team_id":
		return sc.TeamID, true
	case "pii_access":
		return sc.PIIAccess, true
	case "tenant_id":
		return sc.TenantID, true
	default:
		return nil, false
	}
}

// resolveRef resolves a Ref against a row and security context.
func resolveRef(ref Ref, row omnitypes.Row, sc *omnitypes.SecurityContext) (any, bool) {
	switch r := ref.(type) {
	case RowField:
		v, ok := row[r.Name]
		if !ok {
			return "", true // absent field compares against "" per the original's .get(field, "")
		}
		if r.Lower {
			return strings.ToLower(fmt.Sprint(v)), true
		}
		return v, true
	case UserAttr:
		return userAttr(sc, r.Name)
	default:
		return nil, false
	}
}

func resolveRHS(rhs RHS, sc *omnitypes.SecurityContext) (any, bool) {
	switch r := rhs.(type) {
	case UserAttr:
		return userAttr(sc, r.Name)
	case Literal:
		return coerceLiteral(r.Value), true
	default:
		return nil, false
	}
}

// coerceLiteral turns the case-insensitive tokens "true"/"false" into real
// booleans so they compare correctly against a boolean attribute like
// pii_access; every other token stays a string.
func coerceLiteral(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	default:
		return s
	}
}

// Eval evaluates a restricted expression against a row and security context.
// Any resolution failure (unknown attribute, malformed ref) denies — it
// never panics or returns an ambiguous result.
func Eval(expr Expr, row omnitypes.Row, sc *omnitypes.SecurityContext) bool {
	lhs, ok := resolveRef(expr.Ref, row, sc)
	if !ok {
		return false
	}
	rhs, ok := resolveRHS(expr.RHS, sc)
	if !ok {
		return false
	}

	eq := valuesEqual(lhs, rhs)
	if expr.Op == OpEq {
		return eq
	}
	return !eq
}

func valuesEqual(a, b any) bool {
	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool || bIsBool {
		if !aIsBool {
			ab = fmt.Sprint(a) == "true"
		}
		if !bIsBool {
			bb = fmt.Sprint(b) == "true"
		}
		return ab == bb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// EvalString parses and evaluates a raw expression string in one step,
// denying on parse failure. A null/empty condition string is treated as
// "always applies" by callers — Eval is never invoked for it.
func EvalString(raw string, row omnitypes.Row, sc *omnitypes.SecurityContext) bool {
	expr, ok := Parse(raw)
	if !ok {
		return false
	}
	return Eval(expr, row, sc)
}
