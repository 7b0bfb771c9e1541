package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/naman3006/E-commerce-sub001/pkg/database"
	pkgconfig "github.com/naman3006/E-commerce-sub001/pkg/config"
	"github.com/naman3006/E-commerce-sub001/pkg/httpclient"
	pkgkafka "github.com/naman3006/E-commerce-sub001/pkg/kafka"
	"github.com/naman3006/E-commerce-sub001/pkg/tracing"
)

// Cart store backends.
const (
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Catalog backends.
const (
	CatalogHTTP     = "http"
	CatalogPostgres = "postgres"
	CatalogMemory   = "memory"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"CART_HTTP_PORT" envDefault:"8003"`
	ShutdownTimeout time.Duration `env:"CART_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Cart store
	Store        string `env:"CART_STORE" envDefault:"redis"`
	CartTTLHours int    `env:"CART_TTL_HOURS" envDefault:"168"`
	Redis        database.RedisConfig
	Mongo        database.MongoConfig

	// Catalog gateway
	CatalogBackend   string `env:"CATALOG_BACKEND" envDefault:"http"`
	CatalogURL       string `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:8001"`
	CatalogTimeoutMS int    `env:"CATALOG_TIMEOUT_MS" envDefault:"2000"`
	CatalogRetries   int    `env:"CATALOG_HTTP_RETRIES" envDefault:"1"`
	CatalogSeedFile  string `env:"CATALOG_SEED_FILE"`
	Postgres         database.PostgresConfig
	SlowQueryMS      int `env:"LOG_SLOW_QUERY_MS" envDefault:"200"`

	// Catalog circuit breaker
	CatalogBreaker httpclient.CircuitBreakerConfig

	// Access layer
	ConflictRetries int `env:"CART_CONFLICT_RETRIES" envDefault:"3"`

	// Events
	EventsEnabled bool `env:"EVENTS_ENABLED" envDefault:"true"`
	Kafka         pkgkafka.ProducerConfig

	// Admin surface. Admin routes are disabled when JWTSecret is empty.
	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	// Observability
	Tracing            tracing.Config
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:"," envDefault:"127.0.0.1/32,::1/128"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Defaults returns the base that environment variables are parsed over.
// Redis, Postgres, Kafka and the catalog breaker start from their packages'
// defaults; the remaining fields carry envDefault tags.
func Defaults() *Config {
	return &Config{
		Redis:          database.DefaultRedisConfig(),
		Postgres:       database.DefaultPostgresConfig(),
		CatalogBreaker: httpclient.DefaultCircuitBreakerConfig("catalog"),
		Kafka:          pkgkafka.DefaultProducerConfig([]string{"localhost:9092"}),
	}
}

// Load reads configuration from environment variables over Defaults and
// validates it.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants. It runs as part of Load.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}

	switch c.Store {
	case StoreRedis, StoreMongo:
	case StoreMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("CART_STORE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("CART_STORE must be one of redis, mongo, memory; got %q", c.Store))
	}
	if c.CartTTLHours < 0 {
		errs = append(errs, errors.New("CART_TTL_HOURS must not be negative"))
	}

	switch c.CatalogBackend {
	case CatalogHTTP:
		u, err := url.Parse(c.CatalogURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("CATALOG_SERVICE_URL must be an absolute http(s) URL; got %q", c.CatalogURL))
		}
	case CatalogPostgres, CatalogMemory:
	default:
		errs = append(errs, fmt.Errorf("CATALOG_BACKEND must be one of http, postgres, memory; got %q", c.CatalogBackend))
	}
	if c.CatalogTimeoutMS <= 0 {
		errs = append(errs, errors.New("CATALOG_TIMEOUT_MS must be positive"))
	}
	if c.CatalogRetries < 0 {
		errs = append(errs, errors.New("CATALOG_HTTP_RETRIES must not be negative"))
	}
	if c.CatalogBreaker.FailureRatio <= 0 || c.CatalogBreaker.FailureRatio > 1 {
		errs = append(errs, errors.New("CB_FAILURE_RATIO must be in (0, 1]"))
	}

	if c.ConflictRetries < 1 {
		errs = append(errs, errors.New("CART_CONFLICT_RETRIES must be at least 1"))
	}
	if c.EventsEnabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when EVENTS_ENABLED is true"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATE must be between 0.0 and 1.0"))
	}
	if c.IsProduction() && c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CartTTL is the inactivity period after which a stored cart expires.
func (c *Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLHours) * time.Hour
}

// CatalogTimeout bounds a single catalog lookup.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.CatalogTimeoutMS) * time.Millisecond
}

// SlowQueryThreshold is the duration at which datastore calls are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMS) * time.Millisecond
}

// CircuitBreaker returns the breaker settings for the catalog HTTP client.
func (c *Config) CircuitBreaker() httpclient.CircuitBreakerConfig {
	return c.CatalogBreaker
}

// CatalogClient returns the retrying HTTP client settings for the catalog.
// The per-attempt timeout is the lookup budget so retries never outlive it.
func (c *Config) CatalogClient() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = c.CatalogTimeout()
	cfg.MaxRetries = c.CatalogRetries
	cfg.RetryWaitMin = 50 * time.Millisecond
	cfg.RetryWaitMax = 250 * time.Millisecond
	return cfg
}
