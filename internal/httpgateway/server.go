package httpgateway

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/omnisql/gateway/internal/auth"
	"github.com/omnisql/gateway/internal/tenantregistry"
)

// ServerConfig holds the parameters NewServer needs, decoupled from the
// process-wide Config struct.
type ServerConfig struct {
	CORSAllowedOrigins []string
}

// Server holds the HTTP server dependencies and the chi router they're
// mounted on.
type Server struct {
	Router   *chi.Mux
	Logger   *slog.Logger
	Redis    *redis.Client
	Registry *tenantregistry.Registry
	Metrics  *prometheus.Registry

	connectors *ConnectorPool
	startedAt  time.Time
}

// NewServer wires the gateway's middleware chain, health/metrics endpoints,
// and the authenticated query surface. oidcAuth may be nil, in which case
// auth.Middleware falls back to dev bearer tokens.
func NewServer(cfg ServerConfig, logger *slog.Logger, rdb *redis.Client, registry *tenantregistry.Registry, metricsReg *prometheus.Registry, oidcAuth *auth.OIDCAuthenticator, connectors *ConnectorPool) *Server {
	s := &Server{
		Router:     chi.NewRouter(),
		Logger:     logger,
		Redis:      rdb,
		Registry:   registry,
		Metrics:    metricsReg,
		connectors: connectors,
		startedAt:  time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/health", s.handleHealth)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(registry, oidcAuth, logger))
		r.Post("/query", s.handleQuery)
	})

	return s
}
