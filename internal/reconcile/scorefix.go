package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/audit"
	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/writeauth"
)

type zeroZeroMatch struct {
	ID             int64
	SourceMatchKey string
	MatchDate      time.Time
	Source         string
}

// CorrectScores implements §4.G.3: for every Match with home_score =
// away_score = 0, either clears it to null (staging agrees, or the match
// is in the future), overwrites it from staging's real scores, or leaves
// it for manual review.
func CorrectScores(ctx context.Context, pool *pgxpool.Pool, changedBy string, dryRun bool) (RunReport, error) {
	report := newReport("score-correction", dryRun)
	defer report.finish()

	candidates, err := findZeroZeroMatches(ctx, pool)
	if err != nil {
		return report, fmt.Errorf("find zero-zero matches: %w", err)
	}
	report.Found = len(candidates)

	today := time.Now().UTC()
	reviewBySource := map[string]int{}

	for _, m := range candidates {
		staged, hasStaging, err := lookupStagingScores(ctx, pool, m.SourceMatchKey)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("match %d: %w", m.ID, err))
			continue
		}

		switch {
		case hasStaging && staged.homeScore == nil && staged.awayScore == nil:
			if !dryRun {
				if err := clearMatchScores(ctx, pool, m.ID, changedBy); err != nil {
					report.Errors = append(report.Errors, err)
					continue
				}
			}
			report.Changed++
		case hasStaging && staged.homeScore != nil && staged.awayScore != nil &&
			!(*staged.homeScore == 0 && *staged.awayScore == 0):
			if !dryRun {
				if err := overwriteMatchScores(ctx, pool, m.ID, *staged.homeScore, *staged.awayScore, changedBy); err != nil {
					report.Errors = append(report.Errors, err)
					continue
				}
			}
			report.Changed++
		case m.MatchDate.After(today):
			if !dryRun {
				if err := clearMatchScores(ctx, pool, m.ID, changedBy); err != nil {
					report.Errors = append(report.Errors, err)
					continue
				}
			}
			report.Changed++
		default:
			report.Skipped++
			reviewBySource[m.Source]++
		}
	}

	report.ByCategory = reviewBySource

	if report.Changed > 0 && !dryRun {
		if err := RefreshMaterializedViews(ctx, pool, defaultLogger()); err != nil {
			report.Errors = append(report.Errors, err)
		}
	}
	return report, nil
}

func findZeroZeroMatches(ctx context.Context, pool *pgxpool.Pool) ([]zeroZeroMatch, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, source_match_key, match_date,
		       split_part(source_match_key, '-', 1) AS source
		FROM `+config.MatchesTable+`
		WHERE home_score = 0 AND away_score = 0 AND deleted_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []zeroZeroMatch
	for rows.Next() {
		var m zeroZeroMatch
		if err := rows.Scan(&m.ID, &m.SourceMatchKey, &m.MatchDate, &m.Source); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type stagedScores struct {
	homeScore *int
	awayScore *int
}

func lookupStagingScores(ctx context.Context, pool *pgxpool.Pool, sourceMatchKey string) (stagedScores, bool, error) {
	var s stagedScores
	err := pool.QueryRow(ctx, `
		SELECT home_score, away_score FROM `+config.StagingGamesTable+`
		WHERE source_match_key = $1
		ORDER BY scraped_at DESC LIMIT 1`, sourceMatchKey).Scan(&s.homeScore, &s.awayScore)
	if err == nil {
		return s, true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return s, false, nil
	}
	return s, false, err
}

func clearMatchScores(ctx context.Context, pool *pgxpool.Pool, matchID int64, changedBy string) error {
	return writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := audit.Write(ctx, tx, config.MatchesTable, matchID, audit.ActionUpdate,
			map[string]int{"home_score": 0, "away_score": 0}, map[string]any{"home_score": nil, "away_score": nil}, changedBy); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE `+config.MatchesTable+` SET home_score = NULL, away_score = NULL WHERE id = $1`, matchID)
		return err
	})
}

func overwriteMatchScores(ctx context.Context, pool *pgxpool.Pool, matchID int64, home, away int, changedBy string) error {
	return writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := audit.Write(ctx, tx, config.MatchesTable, matchID, audit.ActionUpdate,
			map[string]int{"home_score": 0, "away_score": 0}, map[string]int{"home_score": home, "away_score": away}, changedBy); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE `+config.MatchesTable+` SET home_score = $2, away_score = $3 WHERE id = $1`, matchID, home, away)
		return err
	})
}
