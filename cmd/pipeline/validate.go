package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/db"
	"github.com/albapepper/matchpipe/internal/validator"
)

func validateCmd() *cobra.Command {
	var report, cleanStaging, dryRun bool
	var limit int

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the intake validator over staging_games (§4.C)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !report && !cleanStaging {
				return fmt.Errorf("one of --report or --clean-staging is required")
			}

			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				season := config.ResolveSeasonYear(ctx, pool.Pool)
				policy := config.DefaultValidatorConfig()

				// --report is a read-only preview: clean with dry-run forced
				// regardless of the --dry-run flag's value.
				effectiveDryRun := dryRun || report

				stats, err := validator.CleanStagingGames(ctx, pool.Pool, policy, season, limit, effectiveDryRun)
				if err != nil {
					return fmt.Errorf("clean staging games: %w", err)
				}
				logger.Info("validate finished",
					"mode", map[bool]string{true: "report", false: "clean-staging"}[report],
					"dry_run", effectiveDryRun,
					"scanned", stats.Scanned, "fixed", stats.Fixed, "rejected", stats.Rejected)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&report, "report", false, "preview validation outcomes without writing (forces dry-run)")
	cmd.Flags().BoolVar(&cleanStaging, "clean-staging", false, "validate and rewrite/reject staging rows in place")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "with --clean-staging, report counts without writing")
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum staging rows to scan")

	return cmd
}
