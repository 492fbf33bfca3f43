package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Shopify
	ShopifyAPIVersion     string        `envconfig:"SHOPIFY_API_VERSION" default:"2025-07"`
	ShopifyAPISecret      string        `envconfig:"SHOPIFY_API_SECRET"`
	ShopifyAdminBaseURL   string        `envconfig:"SHOPIFY_ADMIN_BASE_URL"`
	ShopifyRequestTimeout time.Duration `envconfig:"SHOPIFY_REQUEST_TIMEOUT" default:"15s"`
	ShopifyUseMock        bool          `envconfig:"SHOPIFY_USE_MOCK" default:"false"`

	// Carrier service
	CarrierServiceName   string `envconfig:"CARRIER_SERVICE_NAME" default:"R8Connect Shipping Rates"`
	ReconcileConcurrency int    `envconfig:"RECONCILE_CONCURRENCY" default:"4"`

	// Database
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite3"`
	DBDSN    string `envconfig:"DB_DSN" default:"file:carriersync.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://jaeger-collector.claude.svc.cluster.local:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"carriersync"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.DBDriver != "sqlite3" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("loading config: unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.ReconcileConcurrency < 1 {
		cfg.ReconcileConcurrency = 1
	}
	return &cfg, nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("shopify.api_version", c.ShopifyAPIVersion),
		attribute.Bool("shopify.mock", c.ShopifyUseMock),
		attribute.String("db.system", c.DBDriver),
	}
}
