package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Server
	Host string `env:"GATEWAY_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"GATEWAY_PORT" envDefault:"8080"`

	// Tenant registry
	TenantConfigDir string `env:"TENANT_CONFIG_DIR" envDefault:"config/tenants"`

	// Redis (cache + rate limiter backing store)
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Telemetry
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricsPath  string `env:"METRICS_PATH" envDefault:"/metrics"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OIDC bearer-token validation (optional — dev mode used when unset)
	JWKSURL     string `env:"JWKS_URL"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	// OPA — reserved, unused in Phase 1.
	OPAURL string `env:"OPA_URL"`

	// HTTP transport to upstream connectors
	UpstreamTimeoutSeconds int `env:"UPSTREAM_TIMEOUT_SECONDS" envDefault:"10"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
