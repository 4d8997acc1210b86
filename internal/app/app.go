// Package app wires the gateway's process-level dependencies — config,
// logging, tracing, metrics, Redis, the tenant registry, and the connector
// pool — into an HTTP server and runs it until the context is canceled.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/omnisql/gateway/internal/auth"
	"github.com/omnisql/gateway/internal/config"
	"github.com/omnisql/gateway/internal/httpgateway"
	"github.com/omnisql/gateway/internal/platform"
	"github.com/omnisql/gateway/internal/telemetry"
	"github.com/omnisql/gateway/internal/tenantregistry"
)

const version = "dev"

// Run builds every gateway dependency from cfg and serves HTTP until ctx is
// canceled, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	registry := tenantregistry.New(cfg.TenantConfigDir)
	if err := registry.LoadAll(); err != nil {
		return fmt.Errorf("loading tenant configs: %w", err)
	}
	logger.Info("tenant registry loaded", "tenants", registry.Count())

	var oidcAuth *auth.OIDCAuthenticator
	if cfg.JWKSURL != "" {
		oidcAuth = auth.NewOIDCAuthenticator(ctx, cfg.JWKSURL, cfg.JWTAudience)
	} else {
		logger.Warn("JWKS_URL not set, falling back to dev bearer tokens")
	}

	connectors := httpgateway.NewConnectorPool(rdb, logger)

	server := httpgateway.NewServer(
		httpgateway.ServerConfig{CORSAllowedOrigins: cfg.CORSAllowedOrigins},
		logger, rdb, registry, metricsReg, oidcAuth, connectors,
	)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
