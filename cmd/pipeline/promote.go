package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/db"
	"github.com/albapepper/matchpipe/internal/promotion"
)

func promoteCmd() *cobra.Command {
	var processStaging bool
	var batchSize int

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote cleaned staging rows into production teams/matches (§4.F)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !processStaging {
				return fmt.Errorf("--process-staging is required")
			}

			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				season := config.ResolveSeasonYear(ctx, pool.Pool)

				rows, err := promotion.FetchPendingRows(ctx, pool.Pool, batchSize)
				if err != nil {
					return fmt.Errorf("fetch pending staging rows: %w", err)
				}
				if len(rows) == 0 {
					logger.Info("promote finished", "processed", 0)
					return nil
				}

				stats := promotion.PromoteBatch(ctx, pool.Pool, season, rows)
				logger.Info("promote finished",
					"processed", stats.Processed,
					"matches_made", stats.MatchesMade,
					"matches_merged", stats.MatchesMerged,
					"errors", len(stats.Errors))
				for _, e := range stats.Errors {
					logger.Error("promote error", "detail", e)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&processStaging, "process-staging", false, "promote validator-cleaned staging rows")
	cmd.Flags().IntVar(&batchSize, "batch-size", 200, "maximum staging rows to promote per invocation")

	return cmd
}
