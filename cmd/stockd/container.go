package main

import (
	"context"
	"time"

	"github.com/cimillas/stockhold/internal/app"
	"github.com/cimillas/stockhold/internal/cache"
	"github.com/cimillas/stockhold/internal/clock"
	"github.com/cimillas/stockhold/internal/config"
	"github.com/cimillas/stockhold/internal/metrics"
	"github.com/cimillas/stockhold/internal/observability"
	"github.com/cimillas/stockhold/internal/scheduler"
	"github.com/cimillas/stockhold/internal/storage/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// container owns the process-wide singletons. Close releases them in
// reverse order of acquisition.
type container struct {
	cfg      config.Config
	logger   *zap.Logger
	pool     *pgxpool.Pool
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	cache    app.ProductCache
	clock    clock.Clock

	closers []func(context.Context) error
}

func newContainer(ctx context.Context, component string) (*container, error) {
	boot, err := zap.NewProduction()
	if err != nil {
		return nil, errors.Wrap(err, "bootstrap logger")
	}
	config.LoadEnvFile(boot)
	_ = boot.Sync()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("component", component))

	c := &container{
		cfg:    cfg,
		logger: logger,
		clock:  clock.NewSystem(),
	}
	c.closers = append(c.closers, func(context.Context) error {
		_ = logger.Sync()
		return nil
	})

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTelEndpoint, component)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.closers = append(c.closers, shutdownTracing)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "connect to db")
	}
	c.closers = append(c.closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	if err := pool.Ping(ctx); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "db ping")
	}
	c.pool = pool

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.metrics = metrics.New(c.registry)

	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			// Reads fall back to Postgres; the cache is never required.
			logger.Warn("product cache disabled", zap.Error(err))
		} else {
			c.cache = cache.NewProductCache(client, cfg.ProductCacheTTL)
			c.closers = append(c.closers, closeRedis(client))
		}
	}

	logger.Info("container ready",
		zap.Bool("cache", c.cache != nil),
		zap.Bool("kafka", cfg.UsesKafka()),
		zap.Bool("tracing", cfg.OTelEndpoint != ""),
	)
	return c, nil
}

func closeRedis(client *redis.Client) func(context.Context) error {
	return func(context.Context) error { return client.Close() }
}

func (c *container) options() []app.Option {
	opts := []app.Option{
		app.WithLogger(c.logger),
		app.WithMetrics(c.metrics),
		app.WithHoldTTL(c.cfg.HoldTTL),
	}
	if c.cache != nil {
		opts = append(opts, app.WithCache(c.cache))
	}
	return opts
}

func (c *container) reclaimService() *app.ReclaimService {
	return app.NewReclaimService(postgres.NewHoldRepository(c.pool), c.clock, c.options()...)
}

// reclaimScheduler is a scheduler the container must close on shutdown.
type reclaimScheduler interface {
	app.ReclaimScheduler
	Close() error
}

// newScheduler publishes reclaims to Kafka when brokers are configured and
// otherwise arms in-process timers against reclaimer.
func (c *container) newScheduler(reclaimer scheduler.Reclaimer) reclaimScheduler {
	if c.cfg.UsesKafka() {
		return scheduler.NewKafkaScheduler(c.cfg.KafkaBrokers, c.cfg.ReclaimTopic)
	}
	return scheduler.NewTimerScheduler(reclaimer, c.clock, c.logger)
}

func (c *container) newConsumer(reclaimer scheduler.Reclaimer) *scheduler.KafkaConsumer {
	return scheduler.NewKafkaConsumer(
		c.cfg.KafkaBrokers,
		c.cfg.ReclaimTopic,
		c.cfg.ReclaimGroupID,
		reclaimer,
		c.clock,
		c.logger,
	)
}

func (c *container) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout())
	defer cancel()
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil && c.logger != nil {
			c.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	c.closers = nil
}

func (c *container) shutdownTimeout() time.Duration {
	if c.cfg.ShutdownTimeout > 0 {
		return c.cfg.ShutdownTimeout
	}
	return defaultShutdownTimeout
}
