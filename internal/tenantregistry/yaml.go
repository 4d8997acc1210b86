package tenantregistry

// yamlTenantConfig mirrors the on-disk tenant config document described in
// the gateway's external interfaces: one YAML file per tenant, keyed by
// tenant_id.
type yamlTenantConfig struct {
	TenantID           string                          `yaml:"tenant_id"`
	DisplayName        string                          `yaml:"display_name"`
	APIBudget          int64                           `yaml:"api_budget"`
	OPAPolicyNamespace string                          `yaml:"opa_policy_namespace"`
	ConnectorConfigs   map[string]yamlConnectorConfig   `yaml:"connector_configs"`
	RLSRules           []yamlRLSRule                    `yaml:"rls_rules"`
	CLSRules           []yamlCLSRule                    `yaml:"cls_rules"`
	TableRegistry       map[string]yamlTableEntry       `yaml:"table_registry"`
}

type yamlConnectorConfig struct {
	BaseURL             string   `yaml:"base_url"`
	AuthType            string   `yaml:"auth_type"`
	CredentialRef       string   `yaml:"credential_ref"`
	Transport           string   `yaml:"transport"`
	GraphQLPath         string   `yaml:"graphql_path"`
	RateLimitCapacity   int      `yaml:"rate_limit_capacity"`
	RateLimitRefillRate float64  `yaml:"rate_limit_refill_rate"`
	FreshnessTTLMs      int64    `yaml:"freshness_ttl_ms"`
	PushableFilters     []string          `yaml:"pushable_filters"`
	PageSize            int               `yaml:"page_size"`
	ExtraParams         map[string]string `yaml:"extra_params"`
	Kind                string            `yaml:"kind"`
}

type yamlRLSRule struct {
	ConnectorID string `yaml:"connector_id"`
	RuleExpr    string `yaml:"rule_expr"`
}

type yamlCLSRule struct {
	ConnectorID string `yaml:"connector_id"`
	Column      string `yaml:"column"`
	Action      string `yaml:"action"`
	Condition   string `yaml:"condition"`
}

type yamlTableEntry struct {
	ConnectorID string `yaml:"connector"`
	FetchKey    string `yaml:"fetch_key"`
}
