package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/db"
	"github.com/albapepper/matchpipe/internal/reconcile"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a reconciliation operator against production data (§4.G)",
	}
	cmd.AddCommand(reconcileDedupCmd())
	cmd.AddCommand(reconcileOrphanCmd())
	cmd.AddCommand(reconcileScorefixCmd())
	cmd.AddCommand(reconcileCrossImportCmd())
	cmd.AddCommand(reconcileRecoveryCmd())
	cmd.AddCommand(reconcileGarbageCmd())
	return cmd
}

// logReport logs a RunReport uniformly across operators.
func logReport(operator string, r reconcile.RunReport, err error) error {
	if err != nil {
		logger.Error("reconcile failed", "operator", operator, "error", err)
		return err
	}
	logger.Info("reconcile finished",
		"operator", r.Operator, "dry_run", r.DryRun,
		"found", r.Found, "changed", r.Changed, "skipped", r.Skipped,
		"errors", len(r.Errors), "duration", r.Duration.Round(time.Millisecond))
	for _, e := range r.Errors {
		logger.Error("reconcile row error", "operator", operator, "error", e)
	}
	return nil
}

func reconcileDedupCmd() *cobra.Command {
	var changedBy string
	var execute bool
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Merge duplicate teams sharing canonical identity (§4.G.1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				r, err := reconcile.DedupDuplicates(ctx, pool.Pool, changedBy, !execute)
				return logReport("dedup", r, err)
			})
		},
	}
	cmd.Flags().StringVar(&changedBy, "changed-by", "cli:reconcile-dedup", "audit actor recorded on changed rows")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply merges (default is dry-run preview)")
	return cmd
}

func reconcileOrphanCmd() *cobra.Command {
	var changedBy string
	var execute bool
	cmd := &cobra.Command{
		Use:   "orphan",
		Short: "Fill null team metadata and absorb orphaned teams (§4.G.2)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				r, err := reconcile.FixNullMetadataAndAbsorbOrphans(ctx, pool.Pool, changedBy, !execute)
				return logReport("orphan", r, err)
			})
		},
	}
	cmd.Flags().StringVar(&changedBy, "changed-by", "cli:reconcile-orphan", "audit actor recorded on changed rows")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply fixes (default is dry-run preview)")
	return cmd
}

func reconcileScorefixCmd() *cobra.Command {
	var changedBy string
	var execute bool
	cmd := &cobra.Command{
		Use:   "scorefix",
		Short: "Re-check staged scores against suspicious 0-0 matches (§4.G.3)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				r, err := reconcile.CorrectScores(ctx, pool.Pool, changedBy, !execute)
				return logReport("scorefix", r, err)
			})
		},
	}
	cmd.Flags().StringVar(&changedBy, "changed-by", "cli:reconcile-scorefix", "audit actor recorded on changed rows")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply score corrections (default is dry-run preview)")
	return cmd
}

func reconcileCrossImportCmd() *cobra.Command {
	var changedBy, legacyPrefix string
	var execute bool
	cmd := &cobra.Command{
		Use:   "crossimport",
		Short: "Absorb duplicate matches re-imported under a legacy source prefix (§4.G.4)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				r, err := reconcile.AbsorbCrossImportDuplicates(ctx, pool.Pool, legacyPrefix, changedBy, !execute)
				return logReport("crossimport", r, err)
			})
		},
	}
	cmd.Flags().StringVar(&legacyPrefix, "legacy-source-prefix", "legacy-archive", "source_match_key prefix identifying legacy-imported rows")
	cmd.Flags().StringVar(&changedBy, "changed-by", "cli:reconcile-crossimport", "audit actor recorded on changed rows")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply absorption (default is dry-run preview)")
	return cmd
}

func reconcileRecoveryCmd() *cobra.Command {
	var changedBy, recoveredBy, fromStr, toStr string
	var execute bool
	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "Recover soft-deleted/merged rows from the audit log within a time window (§4.G.5)",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse(time.RFC3339, fromStr)
			if err != nil {
				return fmt.Errorf("parse --from: %w", err)
			}
			to, err := time.Parse(time.RFC3339, toStr)
			if err != nil {
				return fmt.Errorf("parse --to: %w", err)
			}
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				r, err := reconcile.Recover(ctx, pool.Pool, changedBy, from, to, recoveredBy, !execute)
				return logReport("recovery", r, err)
			})
		},
	}
	cmd.Flags().StringVar(&fromStr, "from", "", "RFC3339 window start (required)")
	cmd.Flags().StringVar(&toStr, "to", "", "RFC3339 window end (required)")
	cmd.Flags().StringVar(&recoveredBy, "recovered-by", "cli:reconcile-recovery", "audit actor recorded as the recoverer")
	cmd.Flags().StringVar(&changedBy, "changed-by", "cli:reconcile-recovery", "audit actor recorded on changed rows")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply recovery (default is dry-run preview)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func reconcileGarbageCmd() *cobra.Command {
	var changedBy string
	var execute bool
	cmd := &cobra.Command{
		Use:   "garbage",
		Short: "Purge unrecoverable junk rows outside the retention policy (§4.G.6)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				season := config.ResolveSeasonYear(ctx, pool.Pool)
				r, err := reconcile.CleanGarbage(ctx, pool.Pool, season, changedBy, !execute)
				return logReport("garbage", r, err)
			})
		},
	}
	cmd.Flags().StringVar(&changedBy, "changed-by", "cli:reconcile-garbage", "audit actor recorded on changed rows")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply purge (default is dry-run preview)")
	return cmd
}
