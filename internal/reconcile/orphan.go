package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/normalizer"
	"github.com/albapepper/matchpipe/internal/registry"
	"github.com/albapepper/matchpipe/internal/writeauth"
)

type nullMetadataTeam struct {
	ID          int64
	DisplayName string
	State       *string
}

// FixNullMetadataAndAbsorbOrphans implements §4.G.2's three phases: fill
// NULL birth_year/gender via the Normalizer, absorb zero-match orphans
// into their match-having counterparts, then recompute aggregate stats.
func FixNullMetadataAndAbsorbOrphans(ctx context.Context, pool *pgxpool.Pool, changedBy string, dryRun bool) (RunReport, error) {
	report := newReport("fix-null-metadata", dryRun)
	defer report.finish()

	phase1Found, phase1Applied, err := fillNullMetadata(ctx, pool, changedBy, dryRun)
	if err != nil {
		return report, fmt.Errorf("phase 1 fill null metadata: %w", err)
	}
	report.Found += phase1Found
	report.Changed += phase1Applied
	report.Skipped += phase1Found - phase1Applied

	orphansFound, orphansAbsorbed, err := absorbOrphans(ctx, pool, changedBy, dryRun)
	if err != nil {
		return report, fmt.Errorf("phase 2 absorb orphans: %w", err)
	}
	report.Found += orphansFound
	report.Changed += orphansAbsorbed

	if !dryRun {
		if err := recomputeTeamStats(ctx, pool); err != nil {
			return report, fmt.Errorf("phase 3 recompute stats: %w", err)
		}
		if report.Changed > 0 {
			if err := RefreshMaterializedViews(ctx, pool, defaultLogger()); err != nil {
				report.Errors = append(report.Errors, err)
			}
		}
	}
	return report, nil
}

// fillNullMetadata runs the Normalizer on every Team with a NULL
// birth_year or gender. Before applying, it checks whether the resulting
// identity would collide with an existing live Team; if so, the pair is
// left for phase 2 instead.
func fillNullMetadata(ctx context.Context, pool *pgxpool.Pool, changedBy string, dryRun bool) (found, applied int, err error) {
	rows, err := pool.Query(ctx, `
		SELECT id, display_name, state FROM `+config.TeamsTable+`
		WHERE merged_into IS NULL AND (birth_year IS NULL OR gender IS NULL)`)
	if err != nil {
		return 0, 0, err
	}
	var candidates []nullMetadataTeam
	for rows.Next() {
		var t nullMetadataTeam
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.State); err != nil {
			rows.Close()
			return 0, 0, err
		}
		candidates = append(candidates, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	found = len(candidates)

	if dryRun {
		return found, found, nil
	}

	for _, t := range candidates {
		identity := normalizer.ExtractIdentity(t.DisplayName)
		if identity.BirthYear == nil && identity.Gender == nil {
			continue
		}

		var collidingID int64
		err := pool.QueryRow(ctx, `
			SELECT id FROM `+config.TeamsTable+`
			WHERE canonical_name = $1 AND birth_year IS NOT DISTINCT FROM $2
			  AND gender IS NOT DISTINCT FROM $3 AND state IS NOT DISTINCT FROM $4
			  AND merged_into IS NULL AND id <> $5`,
			identity.CanonicalName, identity.BirthYear, identity.Gender, t.State, t.ID).Scan(&collidingID)
		if err == nil {
			// Collision: leave for phase 2 rather than apply.
			continue
		}
		if !isNoRows(err) {
			return found, applied, fmt.Errorf("collision check for team %d: %w", t.ID, err)
		}

		updateErr := writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `
				UPDATE `+config.TeamsTable+`
				SET canonical_name = $2, birth_year = COALESCE(birth_year, $3), gender = COALESCE(gender, $4)
				WHERE id = $1`, t.ID, identity.CanonicalName, identity.BirthYear, identity.Gender); err != nil {
				return err
			}
			key := registry.Key{CanonicalName: identity.CanonicalName, BirthYear: identity.BirthYear, Gender: identity.Gender, State: t.State}
			return registry.Register(ctx, tx, key, t.ID, t.DisplayName)
		})
		if updateErr != nil {
			return found, applied, fmt.Errorf("apply metadata fill for team %d: %w", t.ID, updateErr)
		}
		applied++
	}
	return found, applied, nil
}

// absorbOrphans implements phase 2: index match-having teams by
// (birth_year, gender), then for each zero-match team with ranking data,
// look for a candidate in the same bucket where one name is a suffix of
// the other after duplicate-prefix stripping.
func absorbOrphans(ctx context.Context, pool *pgxpool.Pool, changedBy string, dryRun bool) (found, absorbed int, err error) {
	rows, err := pool.Query(ctx, `
		SELECT o.id, o.display_name, o.state
		FROM `+config.TeamsTable+` o
		WHERE o.merged_into IS NULL
		  AND (o.national_rank IS NOT NULL OR o.points IS NOT NULL)
		  AND NOT EXISTS (
		      SELECT 1 FROM `+config.MatchesTable+` m
		      WHERE (m.home_team_id = o.id OR m.away_team_id = o.id) AND m.deleted_at IS NULL
		  )`)
	if err != nil {
		return 0, 0, err
	}
	var orphans []nullMetadataTeam
	for rows.Next() {
		var t nullMetadataTeam
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.State); err != nil {
			rows.Close()
			return 0, 0, err
		}
		orphans = append(orphans, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	found = len(orphans)

	for _, o := range orphans {
		candidateID, ok, err := findOrphanCandidate(ctx, pool, o)
		if err != nil {
			return found, absorbed, fmt.Errorf("find candidate for orphan %d: %w", o.ID, err)
		}
		if !ok {
			continue
		}
		if dryRun {
			absorbed++
			continue
		}
		if err := mergeOneGroup(ctx, pool, mergeGroup{KeeperID: candidateID, LoserIDs: []int64{o.ID}}, changedBy); err != nil {
			return found, absorbed, fmt.Errorf("absorb orphan %d into %d: %w", o.ID, candidateID, err)
		}
		absorbed++
	}
	return found, absorbed, nil
}

// findOrphanCandidate looks for a match-having team in the same
// (birth_year, gender) bucket whose canonicalized name is a suffix match
// of the orphan's, filtering out false positives with different color or
// level adjectives.
func findOrphanCandidate(ctx context.Context, pool *pgxpool.Pool, o nullMetadataTeam) (int64, bool, error) {
	orphanCanon := normalizer.Canonicalize(o.DisplayName)

	rows, err := pool.Query(ctx, `
		SELECT DISTINCT t.id, t.display_name
		FROM `+config.TeamsTable+` t
		JOIN `+config.MatchesTable+` m ON (m.home_team_id = t.id OR m.away_team_id = t.id) AND m.deleted_at IS NULL
		WHERE t.merged_into IS NULL AND t.state IS NOT DISTINCT FROM $1 AND t.id <> $2`, o.State, o.ID)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return 0, false, err
		}
		candidateCanon := normalizer.Canonicalize(name)
		if !isNameSuffixMatch(orphanCanon, candidateCanon) {
			continue
		}
		if hasConflictingAdjective(orphanCanon, candidateCanon) {
			continue
		}
		return id, true, nil
	}
	return 0, false, rows.Err()
}

func isNameSuffixMatch(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasSuffix(a, b) || strings.HasSuffix(b, a)
}

// colorAdjectives and levelAdjectives guard against false-positive suffix
// matches like "Solar Red" vs "Solar Blue" or "Solar Premier" vs
// "Solar Academy" — same base name, different squad.
var colorAdjectives = []string{"red", "blue", "white", "black", "gold", "silver", "green", "orange"}
var levelAdjectives = []string{"premier", "elite", "select", "academy", "gold", "silver", "bronze", "classic"}

func hasConflictingAdjective(a, b string) bool {
	return conflictsOnList(a, b, colorAdjectives) || conflictsOnList(a, b, levelAdjectives)
}

func conflictsOnList(a, b string, list []string) bool {
	var aHas, bHas string
	for _, w := range list {
		if strings.Contains(a, w) {
			aHas = w
		}
		if strings.Contains(b, w) {
			bHas = w
		}
	}
	return aHas != "" && bHas != "" && aHas != bHas
}

// recomputeTeamStats implements phase 3: matches_played/wins/losses/draws
// recomputed from the Match table in one bulk statement.
func recomputeTeamStats(ctx context.Context, pool *pgxpool.Pool) error {
	return writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			WITH results AS (
				SELECT home_team_id AS team_id,
				       CASE WHEN home_score > away_score THEN 1 ELSE 0 END AS win,
				       CASE WHEN home_score < away_score THEN 1 ELSE 0 END AS loss,
				       CASE WHEN home_score = away_score THEN 1 ELSE 0 END AS draw
				FROM `+config.MatchesTable+`
				WHERE deleted_at IS NULL AND home_score IS NOT NULL AND away_score IS NOT NULL
				UNION ALL
				SELECT away_team_id AS team_id,
				       CASE WHEN away_score > home_score THEN 1 ELSE 0 END AS win,
				       CASE WHEN away_score < home_score THEN 1 ELSE 0 END AS loss,
				       CASE WHEN away_score = home_score THEN 1 ELSE 0 END AS draw
				FROM `+config.MatchesTable+`
				WHERE deleted_at IS NULL AND home_score IS NOT NULL AND away_score IS NOT NULL
			),
			agg AS (
				SELECT team_id, SUM(win) AS wins, SUM(loss) AS losses, SUM(draw) AS draws,
				       SUM(win) + SUM(loss) + SUM(draw) AS played
				FROM results
				GROUP BY team_id
			)
			UPDATE `+config.TeamsTable+` t
			SET matches_played = agg.played, wins = agg.wins, losses = agg.losses, draws = agg.draws
			FROM agg
			WHERE t.id = agg.team_id`)
		if err != nil {
			return fmt.Errorf("recompute team stats: %w", err)
		}
		return nil
	})
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
