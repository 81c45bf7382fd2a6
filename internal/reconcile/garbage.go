package reconcile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/audit"
	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/writeauth"
)

// impossibleDateYear is the threshold beyond which a match date cannot be
// legitimate scheduling data (§4.G.6). The season after the current one
// (SEASON_YEAR+1) is preserved as "possibly valid upcoming".
const impossibleDateYear = 2027

// CleanGarbage implements §4.G.6: deletes Matches with impossible dates
// that lack both league and tournament linkage, preserving next-season
// dates as possibly-valid upcoming fixtures.
func CleanGarbage(ctx context.Context, pool *pgxpool.Pool, currentSeasonYear int, changedBy string, dryRun bool) (RunReport, error) {
	report := newReport("garbage-cleanup", dryRun)
	defer report.finish()

	preserveYear := currentSeasonYear + 1

	rows, err := pool.Query(ctx, `
		SELECT id
		FROM `+config.MatchesTable+`
		WHERE deleted_at IS NULL
		  AND EXTRACT(YEAR FROM match_date) >= $1
		  AND EXTRACT(YEAR FROM match_date) <> $2
		  AND league_id IS NULL AND tournament_id IS NULL`,
		impossibleDateYear, preserveYear)
	if err != nil {
		return report, fmt.Errorf("find garbage matches: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return report, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}
	report.Found = len(ids)

	if dryRun || len(ids) == 0 {
		return report, nil
	}

	err = writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		for _, id := range ids {
			if err := audit.Write(ctx, tx, config.MatchesTable, id, audit.ActionDelete, nil, nil, changedBy); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `DELETE FROM `+config.MatchesTable+` WHERE id = ANY($1)`, ids)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("delete garbage matches: %w", err)
	}
	report.Changed = len(ids)

	if err := RefreshMaterializedViews(ctx, pool, defaultLogger()); err != nil {
		report.Errors = append(report.Errors, err)
	}
	return report, nil
}
