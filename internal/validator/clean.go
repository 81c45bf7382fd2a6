package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/writeauth"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CleanStats summarizes one CleanStagingGames pass.
type CleanStats struct {
	Scanned   int
	Fixed     int
	Rejected  int
	DryRun    bool
}

type stagingRow struct {
	id             int64
	homeTeamRaw    string
	awayTeamRaw    string
	matchDate      *time.Time
	sourcePlatform string
	sourceMatchKey string
	eventName      string
	birthYear      *int
}

// CleanStagingGames scans up to limit unprocessed staging_games rows,
// validates each, rewrites auto-fixed rows in place, and archives rejected
// rows into staging_rejected before deleting them from staging_games
// (§4.C). Dry-run performs no writes and returns stats only.
func CleanStagingGames(ctx context.Context, pool *pgxpool.Pool, cfg config.ValidatorConfig, currentSeason, limit int, dryRun bool) (CleanStats, error) {
	stats := CleanStats{DryRun: dryRun}

	rows, err := fetchUnprocessedStaging(ctx, pool, limit)
	if err != nil {
		return stats, fmt.Errorf("fetch unprocessed staging rows: %w", err)
	}
	stats.Scanned = len(rows)
	if len(rows) == 0 {
		return stats, nil
	}

	if dryRun {
		for _, row := range rows {
			res := ValidateRecord(toRecord(row, currentSeason), cfg)
			if len(res.Fixes) > 0 {
				stats.Fixed++
			}
			if !res.Valid {
				stats.Rejected++
			}
		}
		return stats, nil
	}

	err = writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		for _, row := range rows {
			res := ValidateRecord(toRecord(row, currentSeason), cfg)

			if !res.Valid {
				if _, err := tx.Exec(ctx, `
					INSERT INTO `+config.StagingRejectedTable+`
						(staging_id, code, reason, home_team_raw, away_team_raw, source_platform, source_match_key, rejected_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
					row.id, res.PrimaryCode(), res.ReasonString(),
					row.homeTeamRaw, row.awayTeamRaw, row.sourcePlatform, row.sourceMatchKey); err != nil {
					return fmt.Errorf("archive rejected staging row %d: %w", row.id, err)
				}
				if _, err := tx.Exec(ctx, `DELETE FROM `+config.StagingGamesTable+` WHERE id = $1`, row.id); err != nil {
					return fmt.Errorf("delete rejected staging row %d: %w", row.id, err)
				}
				stats.Rejected++
				continue
			}

			if len(res.Fixes) > 0 {
				if _, err := tx.Exec(ctx, `
					UPDATE `+config.StagingGamesTable+`
					SET source_match_key = $2
					WHERE id = $1`, row.id, res.Record.SourceMatchKey); err != nil {
					return fmt.Errorf("apply auto-fix to staging row %d: %w", row.id, err)
				}
				stats.Fixed++
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	return stats, nil
}

func fetchUnprocessedStaging(ctx context.Context, pool *pgxpool.Pool, limit int) ([]stagingRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, home_team_raw, away_team_raw, match_date, source_platform, source_match_key,
		       COALESCE(event_name, ''), birth_year
		FROM `+config.StagingGamesTable+`
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stagingRow
	for rows.Next() {
		var r stagingRow
		if err := rows.Scan(&r.id, &r.homeTeamRaw, &r.awayTeamRaw, &r.matchDate,
			&r.sourcePlatform, &r.sourceMatchKey, &r.eventName, &r.birthYear); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func toRecord(row stagingRow, currentSeason int) Record {
	return Record{
		HomeTeamRaw:    row.homeTeamRaw,
		AwayTeamRaw:    row.awayTeamRaw,
		MatchDate:      row.matchDate,
		SourcePlatform: row.sourcePlatform,
		SourceMatchKey: row.sourceMatchKey,
		EventName:      row.eventName,
		BirthYear:      row.birthYear,
		CurrentSeason:  currentSeason,
	}
}
