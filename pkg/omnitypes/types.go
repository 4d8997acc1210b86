// Package omnitypes holds the value types shared across the gateway's
// planning, execution, security, and caching layers. It has no behaviour of
// its own — keeping it dependency-free avoids the cyclic imports that
// TenantConfig and SecurityContext would otherwise create between the
// registry, policy, and engine packages.
package omnitypes

import "time"

// AuthType is the credential scheme a connector's upstream expects.
type AuthType string

const (
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
)

// Transport is the wire protocol a connector speaks.
type Transport string

const (
	TransportREST    Transport = "rest"
	TransportGraphQL Transport = "graphql"
)

// CLSAction is the masking behaviour a column-level-security rule applies.
type CLSAction string

const (
	CLSHashHMAC CLSAction = "hash_hmac"
	CLSBlock    CLSAction = "block"
	CLSRedact   CLSAction = "redact"
)

// ConnectorConfig describes one upstream SaaS source reachable by a tenant.
type ConnectorConfig struct {
	ID                  string
	BaseURL             string
	AuthType            AuthType
	CredentialRef       string
	Transport           Transport
	GraphQLPath         string
	RateLimitCapacity   int
	RateLimitRefillRate float64
	FreshnessTTLMs      int64
	PushableFilters     map[string]struct{}
	PageSize            int
	ExtraParams         map[string]string // connector-specific knobs, e.g. GitHub owner/repo
	Kind                string            // implementation to construct: github, jira or linear; defaults to ID
}

// RLSRule restricts which rows of a connector's output a tenant's callers
// may see.
type RLSRule struct {
	ConnectorID string
	RuleExpr    string
}

// CLSRule masks or hides a named column of a connector's output.
type CLSRule struct {
	ConnectorID string
	Column      string
	Action      CLSAction
	Condition   string // empty means "always applies"
}

// TableEntry maps a dotted virtual table name to the connector and fetch key
// that serve it.
type TableEntry struct {
	ConnectorID string
	FetchKey    string
}

// TenantConfig is an immutable snapshot of one tenant's configuration, as
// loaded from its config document. Callers never mutate a TenantConfig in
// place; the registry replaces the whole snapshot on reload.
type TenantConfig struct {
	TenantID           string
	DisplayName        string
	APIBudget          int64 // read, unenforced in Phase 1 (parity with OPA)
	OPAPolicyNamespace string
	ConnectorConfigs   map[string]*ConnectorConfig
	RLSRules           []RLSRule
	CLSRules           []CLSRule
	TableRegistry      map[string]TableEntry
}

// SecurityContext is the request-scoped, immutable identity and entitlement
// bundle a request's RLS/CLS evaluation runs against.
type SecurityContext struct {
	UserID     string
	Email      string
	Role       string
	TeamID     string
	PIIAccess  bool
	TenantID   string
	TenantCfg  *TenantConfig
}

// Row is an opaque attribute map: a single fetched or joined record.
type Row map[string]any

// FetchNode is one vertex of an ExecutionDAG: a single connector fetch with
// its pushdown filters, bound to the view name the rewritten SQL will
// reference.
type FetchNode struct {
	ID              string
	ConnectorID     string
	FetchKey        string
	TableName       string // dotted source name, e.g. "github.pull_requests"
	ViewName        string // dots -> underscores
	PushdownFilters map[string]any
	DuckDBFilters   map[string]any
	DependsOn       []string
}

// ExecutionDAG is the planner's output: one node per retained table plus the
// SQL rewritten to reference each node's view name.
type ExecutionDAG struct {
	Nodes        []*FetchNode
	RewrittenSQL string
}

// CacheEntry is the value stored at a cache key.
type CacheEntry struct {
	Data      []Row     `json:"data"`
	FetchedAt time.Time `json:"fetched_at"`
	ETag      string    `json:"etag,omitempty"`
}

// RateBucket is the value stored at a rate-limiter key.
type RateBucket struct {
	Tokens      float64   `json:"tokens"`
	LastRefill  time.Time `json:"last_refill"`
}

// RateLimitStatus is the non-consuming view of a bucket's state returned in
// response metadata.
type RateLimitStatus struct {
	Capacity  int     `json:"capacity"`
	Remaining int     `json:"remaining"`
	Allowed   bool    `json:"allowed"`
}

// NodeResult is what executing a single FetchNode produces.
type NodeResult struct {
	ViewName        string
	Data            []Row
	ConnectorID     string
	FreshnessMs     int64
	FromCache       bool
	Stale           bool
	RateLimitStatus RateLimitStatus
}
