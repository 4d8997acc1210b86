package tenantregistry

import (
	"fmt"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

var validAuthTypes = map[string]omnitypes.AuthType{
	"bearer": omnitypes.AuthBearer,
	"basic":  omnitypes.AuthBasic,
}

var validTransports = map[string]omnitypes.Transport{
	"rest":    omnitypes.TransportREST,
	"graphql": omnitypes.TransportGraphQL,
}

var validCLSActions = map[string]omnitypes.CLSAction{
	"hash_hmac": omnitypes.CLSHashHMAC,
	"block":     omnitypes.CLSBlock,
	"redact":    omnitypes.CLSRedact,
}

// toTenantConfig validates a parsed YAML document and converts it into the
// immutable snapshot type the rest of the gateway consumes. Validation
// failures during a load leave the previous registry snapshot untouched —
// the caller must not install a partially-converted config.
func toTenantConfig(doc *yamlTenantConfig, fileName string) (*omnitypes.TenantConfig, error) {
	if doc.TenantID == "" {
		return nil, fmt.Errorf("%s: missing tenant_id", fileName)
	}
	if doc.DisplayName == "" {
		return nil, fmt.Errorf("%s: missing display_name", fileName)
	}
	if len(doc.ConnectorConfigs) == 0 {
		return nil, fmt.Errorf("%s: tenant %s has no connector_configs", fileName, doc.TenantID)
	}

	connectors := make(map[string]*omnitypes.ConnectorConfig, len(doc.ConnectorConfigs))
	for id, raw := range doc.ConnectorConfigs {
		cc, err := toConnectorConfig(id, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: tenant %s: %w", fileName, doc.TenantID, err)
		}
		connectors[id] = cc
	}

	rlsRules := make([]omnitypes.RLSRule, 0, len(doc.RLSRules))
	for i, r := range doc.RLSRules {
		if r.ConnectorID == "" {
			return nil, fmt.Errorf("%s: tenant %s: rls_rules[%d] missing connector_id", fileName, doc.TenantID, i)
		}
		if _, ok := connectors[r.ConnectorID]; !ok {
			return nil, fmt.Errorf("%s: tenant %s: rls_rules[%d] references unknown connector %q", fileName, doc.TenantID, i, r.ConnectorID)
		}
		if r.RuleExpr == "" {
			return nil, fmt.Errorf("%s: tenant %s: rls_rules[%d] missing rule_expr", fileName, doc.TenantID, i)
		}
		rlsRules = append(rlsRules, omnitypes.RLSRule{ConnectorID: r.ConnectorID, RuleExpr: r.RuleExpr})
	}

	clsRules := make([]omnitypes.CLSRule, 0, len(doc.CLSRules))
	for i, r := range doc.CLSRules {
		if r.ConnectorID == "" || r.Column == "" {
			return nil, fmt.Errorf("%s: tenant %s: cls_rules[%d] missing connector_id or column", fileName, doc.TenantID, i)
		}
		if _, ok := connectors[r.ConnectorID]; !ok {
			return nil, fmt.Errorf("%s: tenant %s: cls_rules[%d] references unknown connector %q", fileName, doc.TenantID, i, r.ConnectorID)
		}
		action, ok := validCLSActions[r.Action]
		if !ok {
			return nil, fmt.Errorf("%s: tenant %s: cls_rules[%d] has invalid action %q", fileName, doc.TenantID, i, r.Action)
		}
		clsRules = append(clsRules, omnitypes.CLSRule{
			ConnectorID: r.ConnectorID,
			Column:      r.Column,
			Action:      action,
			Condition:   r.Condition,
		})
	}

	tableRegistry := make(map[string]omnitypes.TableEntry, len(doc.TableRegistry))
	for name, entry := range doc.TableRegistry {
		if entry.ConnectorID == "" || entry.FetchKey == "" {
			return nil, fmt.Errorf("%s: tenant %s: table_registry[%s] missing connector or fetch_key", fileName, doc.TenantID, name)
		}
		if _, ok := connectors[entry.ConnectorID]; !ok {
			return nil, fmt.Errorf("%s: tenant %s: table_registry[%s] references unknown connector %q", fileName, doc.TenantID, name, entry.ConnectorID)
		}
		tableRegistry[name] = omnitypes.TableEntry{ConnectorID: entry.ConnectorID, FetchKey: entry.FetchKey}
	}

	return &omnitypes.TenantConfig{
		TenantID:           doc.TenantID,
		DisplayName:        doc.DisplayName,
		APIBudget:          doc.APIBudget,
		OPAPolicyNamespace: doc.OPAPolicyNamespace,
		ConnectorConfigs:   connectors,
		RLSRules:           rlsRules,
		CLSRules:           clsRules,
		TableRegistry:      tableRegistry,
	}, nil
}

func toConnectorConfig(id string, raw yamlConnectorConfig) (*omnitypes.ConnectorConfig, error) {
	if raw.BaseURL == "" {
		return nil, fmt.Errorf("connector %s: missing base_url", id)
	}

	authType := raw.AuthType
	if authType == "" {
		authType = "bearer"
	}
	at, ok := validAuthTypes[authType]
	if !ok {
		return nil, fmt.Errorf("connector %s: invalid auth_type %q", id, authType)
	}

	transport := raw.Transport
	if transport == "" {
		transport = "rest"
	}
	tr, ok := validTransports[transport]
	if !ok {
		return nil, fmt.Errorf("connector %s: invalid transport %q", id, transport)
	}

	capacity := raw.RateLimitCapacity
	if capacity <= 0 {
		capacity = 50
	}
	refillRate := raw.RateLimitRefillRate
	if refillRate <= 0 {
		refillRate = 10.0
	}
	ttl := raw.FreshnessTTLMs
	if ttl <= 0 {
		ttl = 60_000
	}
	pageSize := raw.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	graphqlPath := raw.GraphQLPath
	if graphqlPath == "" {
		graphqlPath = "/graphql"
	}

	pushable := make(map[string]struct{}, len(raw.PushableFilters))
	for _, f := range raw.PushableFilters {
		pushable[f] = struct{}{}
	}

	extra := raw.ExtraParams
	if extra == nil {
		extra = map[string]string{}
	}

	kind := raw.Kind
	if kind == "" {
		kind = id
	}

	return &omnitypes.ConnectorConfig{
		ID:                  id,
		BaseURL:             raw.BaseURL,
		AuthType:            at,
		CredentialRef:       raw.CredentialRef,
		Transport:           tr,
		GraphQLPath:         graphqlPath,
		RateLimitCapacity:   capacity,
		RateLimitRefillRate: refillRate,
		FreshnessTTLMs:      ttl,
		PushableFilters:     pushable,
		PageSize:            pageSize,
		ExtraParams:         extra,
		Kind:                kind,
	}, nil
}
