// Package main runs the offline backfill and parity tools that move legacy
// documents into the primary store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trailquest/backend/config"
	"github.com/trailquest/backend/internal/migration"
	"github.com/trailquest/backend/internal/store"
	"github.com/trailquest/backend/pkg/database"
	"github.com/trailquest/backend/pkg/redis"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "trailquest-migrate",
		Short: "Backfill and parity tools for the legacy-to-primary store migration",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("trailquest-migrate v%s\n", version)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Copy all legacy organizations into the primary store",
		RunE:  runBackfill,
	}
	runCmd.Flags().Bool("dry-run", false, "print the derived write plan without writing")
	runCmd.Flags().Bool("resume", false, "skip organizations already in the checkpoint")
	runCmd.Flags().String("checkpoint-path", "", "checkpoint file (default from MIGRATE_CHECKPOINT_PATH)")
	runCmd.Flags().Int("concurrency", 0, "worker pool width (default from MIGRATE_CONCURRENCY)")
	rootCmd.AddCommand(runCmd)

	parityCmd := &cobra.Command{
		Use:   "parity",
		Short: "Sample both stores and report divergence",
		RunE:  runParity,
	}
	parityCmd.Flags().Int("sample", 0, "number of organizations to sample (0 = all)")
	parityCmd.Flags().Int64("seed", 1, "sampling seed for reproducible runs")
	rootCmd.AddCommand(parityCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	cfg, legacy, primary, cleanup, err := openAdapters(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := migration.Options{CheckpointPath: cfg.Migrate.CheckpointPath, Concurrency: cfg.Migrate.Concurrency}
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	opts.Resume, _ = cmd.Flags().GetBool("resume")
	if path, _ := cmd.Flags().GetString("checkpoint-path"); path != "" {
		opts.CheckpointPath = path
	}
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		opts.Concurrency = n
	}

	summary, err := migration.NewEngine(legacy, primary, logger).Run(ctx, opts)
	if err != nil {
		return err
	}
	if !summary.Ok() {
		return fmt.Errorf("backfill incomplete: %d migrated, %d skipped, invalid=[%s], failed=[%s], cancelled=%v",
			summary.Migrated, summary.Skipped,
			strings.Join(summary.Invalid, ","), strings.Join(summary.Failed, ","), summary.Cancelled)
	}
	fmt.Printf("backfill complete: %d migrated, %d skipped of %d\n", summary.Migrated, summary.Skipped, summary.Total)
	return nil
}

func runParity(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	_, legacy, primary, cleanup, err := openAdapters(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sample, _ := cmd.Flags().GetInt("sample")
	seed, _ := cmd.Flags().GetInt64("seed")

	report, err := migration.NewParity(legacy, primary, logger).Check(ctx, sample, seed)
	if err != nil {
		return err
	}
	// Divergence is reported, not fatal.
	fmt.Printf("parity: %d checked, %d matched, %d mismatched, %d missing in primary, %d missing in legacy\n",
		report.Checked, report.Matched, len(report.Mismatched), len(report.MissingPrimary), len(report.MissingLegacy))
	return nil
}

// openAdapters connects both backends and wraps them in the retry policy.
// With LOCAL_EMULATOR_ENABLED the real backends are replaced by in-memory
// stores, for development without Postgres/Redis running.
func openAdapters(ctx context.Context, logger *zap.Logger) (cfg *config.Config, legacy, primary store.Adapter, cleanup func(), err error) {
	cfg, err = config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.Flags.LocalEmulator {
		logger.Warn("local emulator enabled, using in-memory stores")
		return cfg, store.NewMemoryStore("legacy-memory"), store.NewMemoryStore("primary-memory"), func() {}, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("migrate schema: %w", err)
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("redis: %w", err)
	}

	cleanup = func() {
		pool.Close()
		rdb.Close()
	}
	legacy = store.WithRetry(store.NewRedisStore(rdb.Client, logger), cfg.Retry, logger)
	primary = store.WithRetry(store.NewPostgresStore(pool, logger), cfg.Retry, logger)
	return cfg, legacy, primary, cleanup, nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
