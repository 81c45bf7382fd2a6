package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/albapepper/matchpipe/internal/adapter"
	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/db"
	"github.com/albapepper/matchpipe/internal/engine"
	"github.com/albapepper/matchpipe/internal/promotion"
	"github.com/albapepper/matchpipe/internal/validator"
)

const scheduledPromoteBatchSize = 200
const scheduledValidateLimit = 1000

// scheduleCmd runs the full scrape → validate → promote cycle for every
// registered adapter on a cron schedule, blocking until interrupted.
// Grounded on the ratings-sync service's cron.New/AddFunc/Start wiring.
func scheduleCmd() *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run scrape+validate+promote for every adapter on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := db.New(context.Background(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			c := cron.New()
			if _, err := c.AddFunc(spec, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
				defer cancel()
				runBatchCycle(ctx, pool)
			}); err != nil {
				return err
			}

			c.Start()
			logger.Info("scheduler started", "spec", spec)

			sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			<-sigCtx.Done()

			logger.Info("scheduler shutting down")
			<-c.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "0 */6 * * *", "cron expression for the batch cycle")
	return cmd
}

func runBatchCycle(ctx context.Context, pool *db.Pool) {
	season := config.ResolveSeasonYear(ctx, pool.Pool)
	eng := engine.New(pool.Pool, logger, season)

	if err := eng.Probe(ctx); err != nil {
		logger.Error("scheduled cycle: write-capability probe failed", "error", err)
		return
	}

	for id, build := range adapter.Registry() {
		a := build()
		stats, err := eng.Run(ctx, &a, engine.Options{ActiveOnly: true, Resume: true})
		if err != nil {
			logger.Error("scheduled scrape failed", "adapter", id, "error", err)
			continue
		}
		logger.Info("scheduled scrape finished", "adapter", id,
			"events_successful", stats.EventsSuccessful, "matches_staged", stats.MatchesStaged)
	}

	policy := config.DefaultValidatorConfig()
	cleanStats, err := validator.CleanStagingGames(ctx, pool.Pool, policy, season, scheduledValidateLimit, false)
	if err != nil {
		logger.Error("scheduled validate failed", "error", err)
	} else {
		logger.Info("scheduled validate finished", "scanned", cleanStats.Scanned, "fixed", cleanStats.Fixed, "rejected", cleanStats.Rejected)
	}

	rows, err := promotion.FetchPendingRows(ctx, pool.Pool, scheduledPromoteBatchSize)
	if err != nil {
		logger.Error("scheduled promote: fetch pending rows failed", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	promoteStats := promotion.PromoteBatch(ctx, pool.Pool, season, rows)
	logger.Info("scheduled promote finished",
		"processed", promoteStats.Processed, "matches_made", promoteStats.MatchesMade, "matches_merged", promoteStats.MatchesMerged)
}
