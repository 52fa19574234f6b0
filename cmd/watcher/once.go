package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timelockWatcher/internal/chain"
	"timelockWatcher/internal/metrics"
	"timelockWatcher/internal/storage"
	"timelockWatcher/internal/storage/memory"
	"timelockWatcher/internal/storage/postgres"
)

type cycleStore interface {
	storage.Store
	storage.StateStore
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, logger, watches, tables, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out, _ := cmd.Flags().GetString("out")
	outDir, _ := cmd.Flags().GetString("out-dir")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store cycleStore
	if dryRun {
		store = memory.NewStore(tables)
	} else {
		if err := requireDSN(cfg); err != nil {
			return err
		}
		pgStore, err := postgres.NewStore(ctx, cfg.PGDSN, tables)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		store = pgStore
	}

	if err := ensureTables(ctx, store, watches, logger); err != nil {
		return err
	}

	conn, err := connectChain(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	sched, err := newScheduler(cfg, watches, conn, store, store, logger)
	if err != nil {
		return err
	}

	logger.Info("single cycle start",
		zap.String("rpc", chain.RedactEndpoint(cfg.RPCURL)),
		zap.Bool("dry_run", dryRun),
		zap.Int("contracts", len(watches)),
	)

	outcomes := sched.RunCycle(ctx, watches)

	var snapshot *storage.JsonlSnapshot
	switch {
	case out != "":
		snapshot = storage.NewJsonlSnapshot(out)
	case outDir != "":
		snapshot = storage.NewJsonlTableSnapshot(outDir)
	}

	failed := 0
	for _, outcome := range outcomes {
		if outcome.Result != metrics.ResultOK {
			failed++
			continue
		}
		if snapshot == nil {
			continue
		}
		rows, err := store.Rows(ctx, outcome.Table)
		if err != nil {
			return err
		}
		if err := snapshot.PutRows(outcome.Table, rows); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tables failed", failed, len(outcomes))
	}
	logger.Info("single cycle done", zap.Int("tables", len(outcomes)), zap.String("out", out), zap.String("out_dir", outDir))
	return nil
}
