package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/db"
	"github.com/albapepper/matchpipe/internal/diagnose"
	"github.com/albapepper/matchpipe/internal/writeauth"
)

func diagnoseCmd() *cobra.Command {
	var team, teamID string
	var healthCheck, stagingStatus bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Inspect pipeline data quality and a single team's lineage (§4.I)",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case healthCheck:
				return runPipelineProbe(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
					report, err := diagnose.HealthCheck(ctx, pool.Pool, writeauth.IsProtectionEnabled)
					if err != nil {
						return fmt.Errorf("health check: %w", err)
					}
					logger.Info("health check",
						"registry_coverage_pct", report.RegistryCoveragePercent,
						"duplicate_groups", report.DuplicateGroupCount,
						"null_metadata", report.NullMetadataCount,
						"stats_mismatches", report.StatsMismatchCount,
						"staging_backlog", report.StagingBacklogCount,
						"orphan_rate", report.OrphanRate,
						"write_protection_enabled", report.WriteProtectionEnabled)
					for _, a := range report.Anomalies {
						logger.Warn("anomaly", "category", a.Category, "count", a.Count, "description", a.Description, "remedy", a.Remedy)
					}
					return nil
				})
			case stagingStatus:
				return runPipelineProbe(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
					var pending, rejected int
					if err := pool.QueryRow(ctx, `SELECT count(*) FROM `+config.StagingGamesTable+` WHERE processed_at IS NULL`).Scan(&pending); err != nil {
						return fmt.Errorf("count pending staging rows: %w", err)
					}
					if err := pool.QueryRow(ctx, `SELECT count(*) FROM `+config.StagingRejectedTable).Scan(&rejected); err != nil {
						return fmt.Errorf("count rejected staging rows: %w", err)
					}
					logger.Info("staging status", "pending", pending, "rejected_total", rejected)
					return nil
				})
			case teamID != "":
				id, err := strconv.ParseInt(teamID, 10, 64)
				if err != nil {
					return fmt.Errorf("parse --team-id: %w", err)
				}
				return runPipelineProbe(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
					report, err := diagnose.LookupTeam(ctx, pool.Pool, id)
					if err != nil {
						return fmt.Errorf("lookup team %d: %w", id, err)
					}
					logTeamReport(report)
					return nil
				})
			case team != "":
				return runPipelineProbe(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
					report, err := diagnose.LookupTeamByName(ctx, pool.Pool, team)
					if err != nil {
						return fmt.Errorf("lookup team %q: %w", team, err)
					}
					logTeamReport(report)
					return nil
				})
			default:
				return fmt.Errorf("one of --team, --team-id, --health-check, or --staging-status is required")
			}
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "look up a team by display or canonical name")
	cmd.Flags().StringVar(&teamID, "team-id", "", "look up a team by production ID")
	cmd.Flags().BoolVar(&healthCheck, "health-check", false, "run the pipeline-wide data quality health check")
	cmd.Flags().BoolVar(&stagingStatus, "staging-status", false, "report pending/rejected staging row counts")

	return cmd
}

func logTeamReport(report diagnose.TeamReport) {
	logger.Info("team lookup",
		"team_id", report.TeamID,
		"display_name", report.DisplayName,
		"canonical_name", report.CanonicalName,
		"matches_played", report.MatchesPlayed,
		"merged_into", report.MergedInto,
		"source_bindings", len(report.SourceBindings))
	for _, b := range report.SourceBindings {
		logger.Info("source binding", "team_id", report.TeamID, "platform", b.SourcePlatform, "type", b.SourceEntityType, "key", b.SourceEntityKey)
	}
	for _, a := range report.Anomalies {
		logger.Warn("team anomaly", "team_id", report.TeamID, "category", a.Category, "description", a.Description, "remedy", a.Remedy)
	}
}
