package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cimillas/stockhold/internal/app"
	"github.com/cimillas/stockhold/internal/storage/postgres"
	transporthttp "github.com/cimillas/stockhold/internal/transport/http"
	"github.com/cimillas/stockhold/migrations"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

func serveAction(cliCtx *cli.Context) error {
	ctx := cliCtx.Context
	c, err := newContainer(ctx, "api")
	if err != nil {
		return err
	}
	defer c.Close()

	if !cliCtx.Bool("skip-migrations") {
		if _, err := migrations.Apply(ctx, c.pool, c.logger); err != nil {
			return err
		}
	}

	holdRepo := postgres.NewHoldRepository(c.pool)
	orderRepo := postgres.NewOrderRepository(c.pool)
	productRepo := postgres.NewProductRepository(c.pool)

	reclaimSvc := c.reclaimService()
	sched := c.newScheduler(reclaimSvc)
	defer func() {
		if err := sched.Close(); err != nil {
			c.logger.Warn("close scheduler", zap.Error(err))
		}
	}()

	opts := c.options()
	productSvc := app.NewProductService(productRepo, c.clock, opts...)
	router := transporthttp.NewRouter(transporthttp.Services{
		Holds:    app.NewHoldService(holdRepo, c.clock, append(opts, app.WithScheduler(sched))...),
		Orders:   app.NewOrderService(orderRepo, c.clock, opts...),
		Payments: app.NewPaymentService(orderRepo, c.clock, opts...),
		Reclaim:  reclaimSvc,
		Products: productSvc,
		Admin:    productSvc,
		DB:       c.pool,
	}, transporthttp.RouterConfig{
		CORSOrigins: c.cfg.CORSOrigins,
		Gatherer:    c.registry,
		Logger:      c.logger,
	})

	server := &http.Server{
		Addr:              ":" + c.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("api listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server shutdown")
		}
		return nil
	})
	if c.cfg.SweepInterval > 0 {
		g.Go(func() error {
			runSweeper(gctx, reclaimSvc, c.cfg.SweepInterval, c.cfg.SweepBatch, c.logger)
			return nil
		})
	}
	if c.cfg.UsesKafka() {
		consumer := c.newConsumer(reclaimSvc)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	err = g.Wait()
	c.logger.Info("server stopped")
	return err
}

func reclaimerAction(cliCtx *cli.Context) error {
	ctx := cliCtx.Context
	c, err := newContainer(ctx, "reclaimer")
	if err != nil {
		return err
	}
	defer c.Close()

	if !c.cfg.UsesKafka() {
		return errors.New("KAFKA_BROKERS is not set")
	}
	consumer := c.newConsumer(c.reclaimService())

	c.logger.Info("reclaimer started",
		zap.Strings("brokers", c.cfg.KafkaBrokers),
		zap.String("topic", c.cfg.ReclaimTopic),
	)
	return consumer.Run(ctx)
}

func sweepAction(cliCtx *cli.Context) error {
	ctx := cliCtx.Context
	c, err := newContainer(ctx, "sweep")
	if err != nil {
		return err
	}
	defer c.Close()

	limit := cliCtx.Int("limit")
	if limit <= 0 {
		limit = c.cfg.SweepBatch
	}
	released, err := c.reclaimService().SweepExpired(ctx, limit)
	c.logger.Info("sweep finished", zap.Int("released", released))
	return err
}

func migrateAction(cliCtx *cli.Context) error {
	ctx := cliCtx.Context
	c, err := newContainer(ctx, "migrate")
	if err != nil {
		return err
	}
	defer c.Close()

	applied, err := migrations.Apply(ctx, c.pool, c.logger)
	if err != nil {
		return err
	}
	c.logger.Info("migrations up to date", zap.Strings("applied", applied))
	return nil
}

type sweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// runSweeper releases expired holds every interval until ctx is done. It
// covers reclaims whose scheduled delivery was lost.
func runSweeper(ctx context.Context, s sweeper, interval time.Duration, batch int, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		released, err := s.SweepExpired(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("sweep failed", zap.Int("released", released), zap.Error(err))
			continue
		}
		if released > 0 {
			logger.Info("sweep released holds", zap.Int("released", released))
		}
	}
}
