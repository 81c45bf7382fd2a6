// Command pipeline is the matchpipe ingestion and reconciliation CLI.
//
// Usage:
//
//	matchpipe scrape --adapter gotsport-sample --active-only
//	matchpipe validate --clean-staging --limit 500
//	matchpipe promote --process-staging --batch-size 200
//	matchpipe reconcile dedup --execute
//	matchpipe diagnose --health-check
//	matchpipe ci-check write-auth --fail-on-violations
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/db"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	_ = godotenv.Load("../.env")
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "matchpipe",
		Short: "Youth-sports match ingestion and reconciliation pipeline",
	}

	root.AddCommand(scrapeCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(promoteCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(diagnoseCmd())
	root.AddCommand(ciCheckCmd())
	root.AddCommand(scheduleCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runPipeline loads config, opens a long-statement-timeout pool, wires a
// signal-cancellable context, and defers pool.Close. Grounded on
// cmd/ingest/main.go's runSeed.
func runPipeline(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		return err
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("connect to database", "error", err)
		return err
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

// runPipelineProbe is runPipeline's short-statement-timeout variant, for
// commands that only read or run quick health probes (diagnose). ci-check
// needs no database and does not use it.
func runPipelineProbe(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		return err
	}

	pool, err := db.NewProbe(ctx, cfg)
	if err != nil {
		logger.Error("connect to database", "error", err)
		return err
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
