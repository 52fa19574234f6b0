package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timelockWatcher/internal/storage/postgres"
)

func runSchema(cmd *cobra.Command, _ []string) error {
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
	logger.Info("schema ready",
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("tables", len(watches)),
	)
	return nil
}
