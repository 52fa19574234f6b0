package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"timelockWatcher/internal/config"
	"timelockWatcher/internal/model"
	"timelockWatcher/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "watcher",
		Short:        "Timelock event watcher and balance aggregator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Rebuild every configured table on its interval",
		RunE:  runWatcher,
	}
	addProcessFlags(runCmd.Flags())
	runCmd.Flags().String("metrics-addr", "", "listen address for /metrics (empty disables)")
	root.AddCommand(runCmd)

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle over every configured table",
		RunE:  runOnce,
	}
	addProcessFlags(onceCmd.Flags())
	onceCmd.Flags().Bool("dry-run", false, "rebuild into memory instead of Postgres")
	onceCmd.Flags().String("out", "", "optional JSONL file the rebuilt rows are appended to")
	onceCmd.Flags().String("out-dir", "", "optional directory receiving one replaced JSONL file per table")
	onceCmd.MarkFlagsMutuallyExclusive("out", "out-dir")
	root.AddCommand(onceCmd)

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Create every configured table if absent",
		RunE:  runSchema,
	}
	schemaCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	schemaCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(schemaCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addProcessFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "node RPC URL (ws, wss, http or https)")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Duration("poll-interval", 60*time.Second, "default interval between cycles")
	flags.Duration("fetch-timeout", 30*time.Second, "timeout of a single RPC request")
	flags.Duration("cycle-timeout", 0, "deadline of one table cycle (0 disables)")
	flags.Duration("reconnect-delay", 5*time.Second, "initial delay before redialing")
	flags.Duration("reconnect-max-delay", time.Minute, "maximum delay between redials")
	flags.Duration("probe-interval", 15*time.Second, "interval of connection health probes")
	flags.Uint64("batch-size", 5000, "blocks per log query")
	flags.Int("max-retries", 3, "maximum retry attempts per log query")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Int("concurrency", 1, "tables rebuilt in parallel within a cycle")
}

// setup loads configuration, builds the logger and validates the
// contracts list.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, []model.ContractWatch, *storage.Tables, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}

	watches, tables, err := config.Watches(cfg.Contracts)
	if err != nil {
		logger.Sync()
		return config.Config{}, nil, nil, nil, err
	}
	return cfg, logger, watches, tables, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

func requireDSN(cfg config.Config) error {
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	return nil
}
