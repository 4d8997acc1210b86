package auth

import "fmt"

// DevClaims mirrors OIDCClaims for the dev-mode token map, used whenever
// JWKS_URL is unset so the gateway is runnable without a real IdP.
type DevClaims struct {
	Subject   string
	Email     string
	Role      string
	TeamID    string
	PIIAccess bool
}

// devTokenMap is a fixed set of bearer tokens accepted in dev mode. It exists
// so the gateway, its tests, and a local console all agree on the same
// fixture identities without needing a running IdP.
var devTokenMap = map[string]DevClaims{
	"token_dev": {
		Subject: "u1", Email: "dev@company.com",
		Role: "developer", TeamID: "mobile", PIIAccess: true,
	},
	"token_qa": {
		Subject: "u2", Email: "qa@company.com",
		Role: "qa", TeamID: "mobile", PIIAccess: false,
	},
	"token_web_dev": {
		Subject: "u3", Email: "webdev@company.com",
		Role: "developer", TeamID: "web", PIIAccess: true,
	},
}

// DevAuthenticator resolves bearer tokens against the fixed devTokenMap.
// Never used when JWKSURL is configured.
type DevAuthenticator struct{}

// Authenticate looks token up in devTokenMap.
func (DevAuthenticator) Authenticate(token string) (*DevClaims, error) {
	claims, ok := devTokenMap[token]
	if !ok {
		return nil, fmt.Errorf("unrecognized dev token")
	}
	return &claims, nil
}
