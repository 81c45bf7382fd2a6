package reconcile

import (
	"context"
	"fmt"

	"github.com/hbollon/go-edlib"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/audit"
	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/writeauth"
)

const nameSimilarityThreshold = 0.3

type crossImportPair struct {
	LegacyID    int64
	ScraperID   int64
	LegacyOpp   string
	ScraperOpp  string
}

// AbsorbCrossImportDuplicates implements §4.G.4: detects the same
// real-world game imported from both a legacy archive and a scraper under
// different opponent Team IDs, and soft-deletes the legacy side.
func AbsorbCrossImportDuplicates(ctx context.Context, pool *pgxpool.Pool, legacySourcePrefix string, changedBy string, dryRun bool) (RunReport, error) {
	report := newReport("cross-import-dedup", dryRun)
	defer report.finish()

	pairs, err := findCrossImportPairs(ctx, pool, legacySourcePrefix)
	if err != nil {
		return report, fmt.Errorf("find cross-import pairs: %w", err)
	}
	report.Found = len(pairs)

	seenLegacy := map[int64]bool{}
	for _, p := range pairs {
		if seenLegacy[p.LegacyID] {
			report.Skipped++
			continue
		}

		similarity, err := edlib.StringsSimilarity(p.LegacyOpp, p.ScraperOpp, edlib.JaroWinkler)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("similarity %q vs %q: %w", p.LegacyOpp, p.ScraperOpp, err))
			continue
		}
		if float64(similarity) <= nameSimilarityThreshold {
			report.Skipped++
			continue
		}

		seenLegacy[p.LegacyID] = true
		if dryRun {
			report.Changed++
			continue
		}

		if err := softDeleteLegacyMatch(ctx, pool, p.LegacyID, p.ScraperID, changedBy); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("legacy match %d: %w", p.LegacyID, err))
			continue
		}
		report.Changed++
	}

	if report.Changed > 0 && !dryRun {
		if err := RefreshMaterializedViews(ctx, pool, defaultLogger()); err != nil {
			report.Errors = append(report.Errors, err)
		}
	}
	return report, nil
}

// findCrossImportPairs implements the 4-way union: same date, same event,
// sharing at least one team, with compatible scores (null on one side or
// equal) and compatible opponent (birth_year, gender). The scraper side
// is whichever row does NOT start with legacySourcePrefix.
func findCrossImportPairs(ctx context.Context, pool *pgxpool.Pool, legacySourcePrefix string) ([]crossImportPair, error) {
	rows, err := pool.Query(ctx, `
		SELECT l.id, s.id,
		       lopp.display_name, sopp.display_name
		FROM `+config.MatchesTable+` l
		JOIN `+config.MatchesTable+` s
		  ON l.match_date = s.match_date
		 AND l.id <> s.id
		 AND (
		      (l.home_team_id = s.home_team_id AND l.league_id IS NOT DISTINCT FROM s.league_id AND l.tournament_id IS NOT DISTINCT FROM s.tournament_id)
		   OR (l.away_team_id = s.away_team_id AND l.league_id IS NOT DISTINCT FROM s.league_id AND l.tournament_id IS NOT DISTINCT FROM s.tournament_id)
		   OR (l.home_team_id = s.away_team_id AND l.league_id IS NOT DISTINCT FROM s.league_id AND l.tournament_id IS NOT DISTINCT FROM s.tournament_id)
		   OR (l.away_team_id = s.home_team_id AND l.league_id IS NOT DISTINCT FROM s.league_id AND l.tournament_id IS NOT DISTINCT FROM s.tournament_id)
		  )
		JOIN `+config.TeamsTable+` lopp ON lopp.id = CASE WHEN l.home_team_id = s.home_team_id OR l.home_team_id = s.away_team_id THEN l.away_team_id ELSE l.home_team_id END
		JOIN `+config.TeamsTable+` sopp ON sopp.id = CASE WHEN s.home_team_id = l.home_team_id OR s.home_team_id = l.away_team_id THEN s.away_team_id ELSE s.home_team_id END
		WHERE l.source_match_key LIKE $1
		  AND s.source_match_key NOT LIKE $1
		  AND l.deleted_at IS NULL AND s.deleted_at IS NULL
		  AND (l.home_score IS NULL OR s.home_score IS NULL OR l.home_score = s.home_score)
		  AND (l.away_score IS NULL OR s.away_score IS NULL OR l.away_score = s.away_score)
		  AND lopp.birth_year IS NOT DISTINCT FROM sopp.birth_year
		  AND lopp.gender IS NOT DISTINCT FROM sopp.gender`,
		legacySourcePrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []crossImportPair
	for rows.Next() {
		var p crossImportPair
		if err := rows.Scan(&p.LegacyID, &p.ScraperID, &p.LegacyOpp, &p.ScraperOpp); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func softDeleteLegacyMatch(ctx context.Context, pool *pgxpool.Pool, legacyID, keeperID int64, changedBy string) error {
	return writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := audit.Write(ctx, tx, config.MatchesTable, legacyID, audit.ActionDelete,
			nil, fmt.Sprintf(`{"kept_match_id": %d}`, keeperID), changedBy); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE `+config.MatchesTable+` SET deleted_at = now(), merged_into = $2 WHERE id = $1`, legacyID, keeperID)
		return err
	})
}
