package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"timelockWatcher/internal/balance"
	"timelockWatcher/internal/chain"
	"timelockWatcher/internal/config"
	"timelockWatcher/internal/indexer"
	"timelockWatcher/internal/metrics"
	"timelockWatcher/internal/model"
	"timelockWatcher/internal/scheduler"
	"timelockWatcher/internal/storage"
	"timelockWatcher/internal/storage/postgres"
)

func runWatcher(cmd *cobra.Command, _ []string) error {
	cfg, logger, watches, tables, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := requireDSN(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN, tables)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := ensureTables(ctx, store, watches, logger); err != nil {
		return err
	}

	conn, err := connectChain(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.OnDisconnect(func(error) { metrics.Reconnects.Inc() })

	sched, err := newScheduler(cfg, watches, conn, store, store, logger)
	if err != nil {
		return err
	}

	logger.Info("watcher start",
		zap.String("rpc", chain.RedactEndpoint(cfg.RPCURL)),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("contracts", len(watches)),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("concurrency", cfg.Concurrency),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)
	logResumeState(ctx, store, watches, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.MetricsAddr, logger)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	return g.Wait()
}

func connectChain(ctx context.Context, cfg config.Config, logger *zap.Logger) (*chain.Connection, error) {
	conn, err := chain.Connect(ctx, chain.Options{
		Endpoint:          cfg.RPCURL,
		ReconnectDelay:    cfg.ReconnectDelay,
		MaxReconnectDelay: cfg.ReconnectMaxDelay,
		ProbeInterval:     cfg.ProbeInterval,
		RequestTimeout:    cfg.FetchTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	return conn, nil
}

func newScheduler(cfg config.Config, watches []model.ContractWatch, conn *chain.Connection, store storage.Store, state storage.StateStore, logger *zap.Logger) (*scheduler.Scheduler, error) {
	fetcher := indexer.NewFetcher(indexer.FetchConfig{
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, conn, logger)

	return scheduler.New(scheduler.Config{
		PollInterval: cfg.PollInterval,
		CycleTimeout: cfg.CycleTimeout,
		Concurrency:  cfg.Concurrency,
	}, watches, scheduler.Deps{
		Chain:     conn,
		Fetcher:   fetcher,
		Rebuilder: balance.NewRebuilder(store, logger),
		State:     state,
		Logger:    logger,
	})
}

func ensureTables(ctx context.Context, store storage.Store, watches []model.ContractWatch, logger *zap.Logger) error {
	for _, watch := range watches {
		if err := store.EnsureTable(ctx, watch.Table); err != nil {
			return err
		}
		logger.Debug("table ready", zap.String("table", watch.Table))
	}
	return nil
}

func logResumeState(ctx context.Context, state storage.StateStore, watches []model.ContractWatch, logger *zap.Logger) {
	for _, watch := range watches {
		block, ok, err := state.LoadState(ctx, scheduler.StateName(watch.Table))
		if err != nil {
			logger.Warn("load table state failed", zap.String("table", watch.Table), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		logger.Info("table previously reconciled",
			zap.String("table", watch.Table),
			zap.Uint64("block_number", block),
		)
	}
}
