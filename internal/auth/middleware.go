package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/omnisql/gateway/internal/tenantregistry"
	"github.com/omnisql/gateway/pkg/omnitypes"
)

// Middleware resolves the tenant from X-Tenant-ID, validates the bearer
// token against it (OIDC/JWKS if oidcAuth is configured, the dev token map
// otherwise), and stores the resulting SecurityContext in the request
// context. Requests that fail either step are rejected with 401.
func Middleware(registry *tenantregistry.Registry, oidcAuth *OIDCAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	dev := DevAuthenticator{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := r.Header.Get("X-Tenant-ID")
			if tenantID == "" {
				respondErr(w, http.StatusUnauthorized, "AUTH_INVALID", "missing X-Tenant-ID header")
				return
			}

			tenantCfg := registry.Get(tenantID)
			if tenantCfg == nil {
				logger.Warn("unknown tenant", "tenant_id", tenantID)
				respondErr(w, http.StatusUnauthorized, "AUTH_INVALID", "unknown tenant")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				respondErr(w, http.StatusUnauthorized, "AUTH_INVALID", "missing bearer token")
				return
			}
			token := strings.TrimSpace(authHeader[len("Bearer "):])

			var sc *omnitypes.SecurityContext
			if oidcAuth != nil {
				claims, err := oidcAuth.Authenticate(r.Context(), token)
				if err != nil {
					logger.Warn("oidc authentication failed", "error", err)
					respondErr(w, http.StatusUnauthorized, "AUTH_INVALID", "invalid token")
					return
				}
				sc = &omnitypes.SecurityContext{
					UserID: claims.Subject, Email: claims.Email, Role: claims.Role,
					TeamID: claims.TeamID, PIIAccess: claims.PIIAccess,
					TenantID: tenantCfg.TenantID, TenantCfg: tenantCfg,
				}
			} else {
				claims, err := dev.Authenticate(token)
				if err != nil {
					logger.Warn("dev authentication failed", "error", err)
					respondErr(w, http.StatusUnauthorized, "AUTH_INVALID", "invalid token")
					return
				}
				sc = &omnitypes.SecurityContext{
					UserID: claims.Subject, Email: claims.Email, Role: claims.Role,
					TeamID: claims.TeamID, PIIAccess: claims.PIIAccess,
					TenantID: tenantCfg.TenantID, TenantCfg: tenantCfg,
				}
			}

			ctx := NewContext(r.Context(), sc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
