package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/achievement-hub/config"
	"github.com/alem-hub/achievement-hub/internal/application/command"
	"github.com/alem-hub/achievement-hub/internal/application/eventhandler"
	"github.com/alem-hub/achievement-hub/internal/application/query"
	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	authn "github.com/alem-hub/achievement-hub/internal/infrastructure/identity"
	"github.com/alem-hub/achievement-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/achievement-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/achievement-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/achievement-hub/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/achievement-hub/internal/infrastructure/telemetry"
	httpapi "github.com/alem-hub/achievement-hub/internal/interface/http"
	"github.com/alem-hub/achievement-hub/internal/interface/http/handlers"
	"github.com/alem-hub/achievement-hub/pkg/logger"
	"github.com/alem-hub/achievement-hub/pkg/retry"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info("starting Achievement Hub",
		logger.String("version", version),
		logger.String("driver", cfg.Database.Driver),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. TRACING
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Observability.TracingEnabled,
		Endpoint:    cfg.Observability.TracingEndpoint,
		ServiceName: cfg.App.Name,
		Version:     version,
		SampleRatio: cfg.Observability.TracingSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORE
	// ─────────────────────────────────────────────────────────────────────────
	checker := handlers.NewCompositeHealthChecker(version)

	store, closeStore, err := openStore(ctx, cfg, log, checker)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing store...")
		closeStore()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. COUNTS CACHE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var counts achievement.CountsCache
	if cfg.Redis.Enabled() {
		cache, err := redis.NewCache(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, counts cache disabled", logger.Err(err))
		} else {
			defer cache.Close()
			counts = redis.NewCountsCache(cache, cfg.Redis.CountsTTL)
			checker.AddCheck("cache", handlers.PingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.AsyncMode = true
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	if err := eventhandler.Register(bus, counts, log); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. IDENTITY
	// ─────────────────────────────────────────────────────────────────────────
	auth, err := newAuthProvider(cfg)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverConfig := httpapi.DefaultConfig()
	serverConfig.Host = cfg.HTTP.Host
	serverConfig.Port = cfg.HTTP.Port
	serverConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	serverConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	serverConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	serverConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverConfig.EnableCORS = cfg.HTTP.EnableCORS
	serverConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpapi.NewServer(serverConfig, httpapi.Dependencies{
		Commands: command.NewHandlers(command.Dependencies{
			Store:  store,
			Events: bus,
			Logger: log,
		}),
		Queries: query.NewHandlers(query.Dependencies{
			Store:  store,
			Cache:  counts,
			Logger: log,
		}),
		Auth:            auth,
		HealthChecker:   checker,
		ReadinessChecks: []string{"store"},
		Logger:          log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. RUN UNTIL SIGNALLED
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

// openStore connects the configured driver and registers its health check.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger, checker *handlers.CompositeHealthChecker) (achievement.Store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		conn, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		checker.AddCheck("store", handlers.PingCheck(conn))
		return postgres.NewAchievementStore(conn), conn.Close, nil

	default:
		store, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		checker.AddCheck("store", handlers.PingCheck(store))
		return store, func() { _ = store.Close() }, nil
	}
}

// connectPostgres opens the pool, retrying while the database comes up.
func connectPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pgConfig := postgres.DefaultConfig()
	pgConfig.URL = cfg.Database.URL
	pgConfig.MaxConns = cfg.Database.MaxConns
	pgConfig.MinConns = cfg.Database.MinConns
	pgConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	pgConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgConfig)
	}, retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("database not reachable, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}

// newAuthProvider builds the bearer token chain from the configured credentials.
func newAuthProvider(cfg *config.Config) (authn.Provider, error) {
	var chain authn.Chain
	if cfg.Auth.JWTSecret != "" {
		jwtProvider, err := authn.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		if err != nil {
			return nil, fmt.Errorf("failed to configure jwt: %w", err)
		}
		chain.JWT = jwtProvider
	}
	if len(cfg.Auth.APIKeys) > 0 {
		keys, err := authn.ParseAPIKeys(cfg.Auth.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to parse api keys: %w", err)
		}
		chain.APIKeys = authn.NewAPIKeyProvider(keys)
	}
	return chain, nil
}
