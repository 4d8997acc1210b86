package auth

import (
	"context"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

type ctxKey string

const securityContextKey ctxKey = "omnisql_security_context"

// NewContext stores the request's SecurityContext in ctx.
func NewContext(ctx context.Context, sc *omnitypes.SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey, sc)
}

// FromContext extracts the SecurityContext stored by NewContext, if any.
func FromContext(ctx context.Context) *omnitypes.SecurityContext {
	sc, _ := ctx.Value(securityContextKey).(*omnitypes.SecurityContext)
	return sc
}
