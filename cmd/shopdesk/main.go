// Package main is the entry point for the shopdesk admin server. It wires
// the stores to the shop backend and serves them over a local JSON API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/internal/auth"
	"github.com/pitabwire/shopdesk/internal/config"
	"github.com/pitabwire/shopdesk/internal/listing"
	"github.com/pitabwire/shopdesk/internal/observability"
	"github.com/pitabwire/shopdesk/internal/openapi"
	"github.com/pitabwire/shopdesk/internal/store"
	"github.com/pitabwire/shopdesk/internal/syncrelay"
	"github.com/pitabwire/shopdesk/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (defaults when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "shopdesk", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	var rdb *redis.Client
	if cfg.Auth.PersistentStore == "redis" || cfg.Sync.Driver == "redis" {
		rdb, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Error("redis connection failed", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
			return 1
		}
		defer rdb.Close()
	}

	var resolver apiclient.RouteResolver
	var index *openapi.Index
	if cfg.Backend.OpenAPISpec != "" {
		index = openapi.NewIndex()
		if err := index.LoadFile(cfg.Backend.OpenAPISpec); err != nil {
			logger.Error("OpenAPI index load failed", zap.Error(err))
			return 1
		}
		resolver = index
		metrics.OpenAPIOperationsIndexed.Set(float64(len(index.OperationIDs())))
	}

	creds := &auth.Credentials{
		Persistent: auth.NewMemoryCredentialStore(),
		Session:    auth.NewMemoryCredentialStore(),
	}
	if cfg.Auth.PersistentStore == "redis" {
		creds.Persistent = auth.NewRedisCredentialStore(rdb, cfg.Auth.RedisKey, cfg.Auth.TokenTTL)
	}

	cb := cfg.Backend.CircuitBreaker
	client, err := apiclient.New(apiclient.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Breaker: apiclient.BreakerConfig{
			FailureThreshold: cb.FailureThreshold,
			SuccessThreshold: cb.SuccessThreshold,
			OpenTimeout:      cb.Timeout,
		},
		Tokens:   creds,
		Logger:   logger.Named("apiclient"),
		Recorder: metrics,
	})
	if err != nil {
		logger.Error("backend client initialization failed", zap.Error(err))
		return 1
	}
	authService := auth.NewService(client, creds, logger.Named("auth"))

	orderSync, productSync, err := buildChannels(ctx, cfg, rdb, metrics, logger)
	if err != nil {
		logger.Error("sync relay initialization failed", zap.Error(err))
		return 1
	}
	defer orderSync.Close()
	defer productSync.Close()

	deps := store.Deps{
		Client:   client,
		Resolver: resolver,
		Logger:   logger,
		Recorder: metrics,
	}

	ordersSize, ordersPolicy, err := resourceSettings(cfg, "orders")
	if err != nil {
		logger.Error("invalid resource settings", zap.Error(err))
		return 1
	}
	productsSize, productsPolicy, err := resourceSettings(cfg, "products")
	if err != nil {
		logger.Error("invalid resource settings", zap.Error(err))
		return 1
	}
	customersSize, customersPolicy, err := resourceSettings(cfg, "customers")
	if err != nil {
		logger.Error("invalid resource settings", zap.Error(err))
		return 1
	}
	_, categoriesPolicy, err := resourceSettings(cfg, "categories")
	if err != nil {
		logger.Error("invalid resource settings", zap.Error(err))
		return 1
	}

	orders := store.NewOrders(deps, orderSync, store.OrdersConfig{PageSize: ordersSize, Policy: ordersPolicy})
	defer orders.Close()
	products := store.NewProducts(deps, productSync, store.ProductsConfig{PageSize: productsSize, Policy: productsPolicy})
	defer products.Close()
	customers := store.NewCustomers(deps, store.NewProductCache(products, 5*time.Minute, 1000), store.CustomersConfig{PageSize: customersSize, Policy: customersPolicy})
	categories := store.NewCategories(deps, store.CategoriesConfig{Policy: categoriesPolicy})

	readiness := observability.ReadinessChecks{
		BackendAvailable: func() bool { return client.Breaker().State() != apiclient.BreakerOpen },
	}
	if index != nil {
		readiness.OpenAPILoaded = func() bool { return len(index.OperationIDs()) > 0 }
	}
	if rdb != nil {
		readiness.Redis = observability.HealthCheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Readiness:   readiness,
		Auth:        authService,
		Orders:      orders,
		Products:    products,
		Customers:   customers,
		Categories:  categories,
		Dashboard:   store.NewDashboard(deps),
		Settings:    store.NewSettings(deps),
		StoreConfig: store.NewStoreConfig(deps),
		Profile:     store.NewProfile(deps),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("backend", client.BaseURL()),
		zap.String("sync_driver", cfg.Sync.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{Addr: cfg.Addr, DB: cfg.DB}
	if cfg.PasswordEnv != "" {
		opts.Password = os.Getenv(cfg.PasswordEnv)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// buildChannels creates the orders and products relay channels on the
// configured driver.
func buildChannels(ctx context.Context, cfg *config.Config, rdb *redis.Client, metrics *observability.Metrics, logger *zap.Logger) (orders, products *syncrelay.Channel, err error) {
	var orderT, productT syncrelay.Transport
	switch cfg.Sync.Driver {
	case "redis":
		orderT, err = syncrelay.NewRedisTransport(ctx, rdb, cfg.Sync.ChannelPrefix, syncrelay.TopicOrders, logger)
		if err != nil {
			return nil, nil, err
		}
		productT, err = syncrelay.NewRedisTransport(ctx, rdb, cfg.Sync.ChannelPrefix, syncrelay.TopicProducts, logger)
		if err != nil {
			_ = orderT.Close()
			return nil, nil, err
		}
	case "memory", "":
		hub := syncrelay.NewMemoryHub(
			syncrelay.WithBuffer(cfg.Sync.Buffer),
			syncrelay.WithDropHook(func(topic string) { metrics.IncSyncDropped(topic, "buffer_full") }),
		)
		orderT = hub.Join(syncrelay.TopicOrders)
		productT = hub.Join(syncrelay.TopicProducts)
	default:
		return nil, nil, fmt.Errorf("unsupported sync driver: %q", cfg.Sync.Driver)
	}

	opts := []syncrelay.ChannelOption{syncrelay.WithLogger(logger), syncrelay.WithRecorder(metrics)}
	orders = syncrelay.NewChannel(syncrelay.TopicOrders, syncrelay.OrderFields, orderT, opts...)
	products = syncrelay.NewChannel(syncrelay.TopicProducts, syncrelay.ProductFields, productT, opts...)
	return orders, products, nil
}

// resourceSettings returns the configured page size and failure policy of a
// list. An unset policy is returned empty so the store keeps its default.
func resourceSettings(cfg *config.Config, name string) (int, listing.FailurePolicy, error) {
	rc := cfg.Resource(name)
	if rc.FailurePolicy == "" {
		return rc.PageSize, "", nil
	}
	p, err := listing.ParseFailurePolicy(rc.FailurePolicy)
	if err != nil {
		return 0, "", fmt.Errorf("%s: %w", name, err)
	}
	return rc.PageSize, p, nil
}
