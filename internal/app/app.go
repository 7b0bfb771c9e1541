package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/naman3006/E-commerce-sub001/internal/access"
	"github.com/naman3006/E-commerce-sub001/internal/auth"
	"github.com/naman3006/E-commerce-sub001/internal/catalog"
	cataloghttp "github.com/naman3006/E-commerce-sub001/internal/catalog/http"
	catalogmemory "github.com/naman3006/E-commerce-sub001/internal/catalog/memory"
	catalogpg "github.com/naman3006/E-commerce-sub001/internal/catalog/postgres"
	"github.com/naman3006/E-commerce-sub001/internal/config"
	"github.com/naman3006/E-commerce-sub001/internal/event"
	handler "github.com/naman3006/E-commerce-sub001/internal/handler/http"
	"github.com/naman3006/E-commerce-sub001/internal/repository"
	memoryrepo "github.com/naman3006/E-commerce-sub001/internal/repository/memory"
	mongorepo "github.com/naman3006/E-commerce-sub001/internal/repository/mongo"
	redisrepo "github.com/naman3006/E-commerce-sub001/internal/repository/redis"
	"github.com/naman3006/E-commerce-sub001/internal/service"
	"github.com/naman3006/E-commerce-sub001/pkg/database"
	"github.com/naman3006/E-commerce-sub001/pkg/health"
	"github.com/naman3006/E-commerce-sub001/pkg/httpclient"
	pkgkafka "github.com/naman3006/E-commerce-sub001/pkg/kafka"
	"github.com/naman3006/E-commerce-sub001/pkg/middleware"
	"github.com/naman3006/E-commerce-sub001/pkg/tracing"
)

const serviceName = "cart-service"

// closer releases one dependency on shutdown.
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	// closers run in reverse order of acquisition.
	closers []closer
}

// NewApp creates a new application instance, initializing all dependencies.
// Whatever was opened before a failure is released before returning.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.onClose("tracer", shutdownTracer)
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)

	healthHandler := health.NewHandler()

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	healthHandler.RegisterCritical("cart-store", store.Ping)

	gateway, pingCatalog, err := a.openCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if pingCatalog != nil {
		// Without the catalog mutations fail with CATALOG_UNAVAILABLE but
		// reads still work, so the instance stays in rotation.
		healthHandler.RegisterNonCritical("catalog", pingCatalog)
	}

	publisher := a.openPublisher(healthHandler)

	validateToken, err := a.tokenValidator()
	if err != nil {
		return nil, err
	}

	cartService := service.NewCartService(store, gateway, publisher, logger, cfg.CatalogTimeout())
	cartAccess := access.NewService(cartService, logger, cfg.ConflictRetries)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.Environment = cfg.Environment

	httpMetrics, err := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer, serviceName)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	router := handler.NewRouter(cartAccess, validateToken, healthHandler, logger, handler.RouterConfig{
		PprofCIDRs: cfg.PprofAllowedCIDRs,
		CORS:       cors,
		Metrics:    httpMetrics,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// openStore connects the configured cart store backend.
func (a *App) openStore(ctx context.Context) (repository.CartStore, error) {
	cfg := a.cfg
	switch cfg.Store {
	case config.StoreRedis:
		client, err := database.NewRedisClient(ctx, cfg.Redis, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose("redis", func(context.Context) error { return client.Close() })
		a.registerCollector(database.RegisterRedisPoolMetrics(prometheus.DefaultRegisterer, client, serviceName))
		a.logger.Info("connected to Redis",
			slog.String("addr", cfg.Redis.Addr),
			slog.Int("db", cfg.Redis.DB),
		)
		return redisrepo.NewCartRepository(client, cfg.CartTTL()), nil

	case config.StoreMongo:
		db, err := database.NewMongoDatabase(ctx, cfg.Mongo, a.logger)
		if err != nil {
			return nil, err
		}
		repo := mongorepo.NewCartRepository(db, cfg.CartTTL())
		a.onClose("mongodb", repo.Disconnect)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("connected to MongoDB", slog.String("database", cfg.Mongo.Database))
		return repo, nil

	default:
		a.logger.Warn("using in-memory cart store; carts are lost on restart")
		return memoryrepo.NewCartRepository(), nil
	}
}

// openCatalog builds the configured catalog gateway and, where the backend
// has one, its readiness probe.
func (a *App) openCatalog(ctx context.Context) (catalog.Gateway, health.Checker, error) {
	cfg := a.cfg
	switch cfg.CatalogBackend {
	case config.CatalogHTTP:
		client := httpclient.NewCircuitBreakerClient(
			httpclient.New(cfg.CatalogClient()),
			cfg.CircuitBreaker(),
			a.logger,
		).WithFallback(cataloghttp.CircuitOpenFallback(cfg.CatalogBreaker.Timeout))
		gw := cataloghttp.NewGateway(client, cfg.CatalogURL)
		a.logger.Info("catalog gateway over HTTP", slog.String("url", cfg.CatalogURL))
		return gw, gw.Ping, nil

	case config.CatalogPostgres:
		pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.onClose("postgres", func(context.Context) error { pool.Close(); return nil })
		a.registerCollector(database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName))
		a.logger.Info("catalog gateway over Postgres",
			slog.String("host", cfg.Postgres.Host),
			slog.String("db", cfg.Postgres.DBName),
		)
		return catalogpg.NewGateway(pool), pool.Ping, nil

	default:
		var products []catalog.Product
		if cfg.CatalogSeedFile != "" {
			var err error
			if products, err = catalogmemory.LoadFile(cfg.CatalogSeedFile); err != nil {
				return nil, nil, err
			}
		}
		a.logger.Warn("using in-memory catalog", slog.Int("products", len(products)))
		return catalogmemory.NewGateway(products...), nil, nil
	}
}

// openPublisher returns the Kafka-backed event producer, or a no-op when
// events are disabled.
func (a *App) openPublisher(h *health.Handler) service.EventPublisher {
	if !a.cfg.EventsEnabled {
		a.logger.Info("cart events disabled")
		return event.Noop{}
	}

	producer := pkgkafka.NewProducer(a.cfg.Kafka, a.logger)
	a.onClose("kafka producer", func(context.Context) error { return producer.Close() })
	// Publish failures never fail a mutation, so a broker outage only
	// degrades the instance.
	h.RegisterNonCritical("kafka", producer.Ping)
	a.logger.Info("kafka producer initialized", slog.Any("brokers", a.cfg.Kafka.Brokers))
	return event.NewProducer(producer, a.logger)
}

// tokenValidator returns the admin token check, or nil to leave the admin
// surface unmounted.
func (a *App) tokenValidator() (middleware.TokenValidator, error) {
	if a.cfg.JWTSecret == "" {
		return nil, nil
	}
	verifier, err := auth.NewVerifier(a.cfg.JWTSecret, a.cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("init jwt verifier: %w", err)
	}
	return verifier.Verify, nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// registerCollector tolerates a collector that is already registered, which
// happens when more than one App is built in the same process.
func (a *App) registerCollector(err error) {
	var are prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &are) {
		a.logger.Warn("register pool metrics", slog.String("error", err.Error()))
	}
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.close(context.Background())
		return err
	}

	return a.Shutdown()
}

// Shutdown drains in-flight requests, then releases dependencies.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if shutdownErr := a.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.Error("http server shutdown error", slog.String("error", shutdownErr.Error()))
		err = fmt.Errorf("shutdown http server: %w", shutdownErr)
	}
	a.close(shutdownCtx)

	a.logger.Info("application shutdown complete")
	return err
}

func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Error("close "+c.name, slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
