// Package reconcile implements the bulk-SQL reconciliation operators
// (spec §4.G): merge duplicates, fix NULL metadata and absorb orphans,
// score correction, cross-import dedup, recovery, and garbage cleanup.
// Every operator shares the same shape — dry-run by default, write-auth
// grant, transaction per logical unit, audit log on destructive writes,
// materialized view refresh on completion — implemented here once and
// reused by each operator file.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// materializedViews lists the views every destructive operator refreshes
// on completion. Adapted from the teacher's maintenance.RefreshMaterializedViews
// (same CONCURRENTLY pattern), generalized to the views this domain reads
// from (registry coverage, duplicate detection).
var materializedViews = []string{
	"mv_canonical_registry_coverage",
	"mv_team_duplicate_groups",
}

// RefreshMaterializedViews refreshes every view an operator's dry-run
// report or diagnostic surface depends on. Called once at the end of an
// --execute run, never during --dry-run.
func RefreshMaterializedViews(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	for _, v := range materializedViews {
		start := time.Now()
		_, err := pool.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+v)
		dur := time.Since(start).Round(time.Millisecond)
		if err != nil {
			logger.Warn("failed to refresh materialized view", "view", v, "duration", dur, "error", err)
			return fmt.Errorf("refresh %s: %w", v, err)
		}
		logger.Info("refreshed materialized view", "view", v, "duration", dur)
	}
	return nil
}

// RunReport is the common shape every operator returns: what it found,
// what it changed, and how long it took. In dry-run, the score-fix,
// cross-import and orphan operators count in Changed the rows they would
// change; the other operators leave it 0.
type RunReport struct {
	Operator  string
	DryRun    bool
	Found     int
	Changed   int
	Skipped   int
	Errors    []error
	StartedAt time.Time
	Duration  time.Duration

	// ByCategory holds operator-specific groupings for manual review (e.g.
	// the score-correction operator's remainder grouped by source).
	ByCategory map[string]int
}

func defaultLogger() *slog.Logger {
	return slog.Default()
}

func newReport(operator string, dryRun bool) RunReport {
	return RunReport{Operator: operator, DryRun: dryRun, StartedAt: time.Now()}
}

func (r *RunReport) finish() {
	r.Duration = time.Since(r.StartedAt)
}
