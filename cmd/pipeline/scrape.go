package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albapepper/matchpipe/internal/adapter"
	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/db"
	"github.com/albapepper/matchpipe/internal/engine"
)

func scrapeCmd() *cobra.Command {
	var adapterID, eventID string
	var activeOnly, resume, dryRun bool

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run the scraper engine for one adapter (§4.B)",
		RunE: func(cmd *cobra.Command, args []string) error {
			build, ok := adapter.Registry()[adapterID]
			if !ok {
				return fmt.Errorf("unknown adapter %q (known: %v)", adapterID, adapterIDs())
			}
			a := build()

			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				seasonYear := config.ResolveSeasonYear(ctx, pool.Pool)
				eng := engine.New(pool.Pool, logger, seasonYear)

				if err := eng.Probe(ctx); err != nil {
					return fmt.Errorf("write-capability probe: %w", err)
				}

				stats, err := eng.Run(ctx, &a, engine.Options{
					EventID:    eventID,
					ActiveOnly: activeOnly,
					Resume:     resume,
					DryRun:     dryRun,
				})
				logger.Info("scrape finished",
					"adapter", adapterID,
					"events_found", stats.EventsFound,
					"events_successful", stats.EventsSuccessful,
					"events_failed", stats.EventsFailed,
					"matches_staged", stats.MatchesStaged,
					"runtime", stats.Runtime)
				for _, e := range stats.Errors {
					logger.Error("scrape error", "detail", e)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&adapterID, "adapter", "", "adapter ID to run (required)")
	cmd.Flags().StringVar(&eventID, "event", "", "run a single explicit event ID, skipping discovery")
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "discover only current/upcoming-season events")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the adapter's last checkpoint")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report but skip staging writes")
	cmd.MarkFlagRequired("adapter")

	return cmd
}

func adapterIDs() []string {
	reg := adapter.Registry()
	ids := make([]string, 0, len(reg))
	for id := range reg {
		ids = append(ids, id)
	}
	return ids
}
