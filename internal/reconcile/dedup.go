package reconcile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/audit"
	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/registry"
	"github.com/albapepper/matchpipe/internal/writeauth"
)

// mergeGroup is one set of Teams sharing a canonical identity, ranked per
// §4.G.1 step 1: keeper is rank 1, losers are the rest.
type mergeGroup struct {
	CanonicalName string
	BirthYear     *int
	Gender        *string
	KeeperID      int64
	LoserIDs      []int64
}

// DedupDuplicates implements §4.G.1: merges Teams sharing canonical
// identity, preserving the keeper's best ranking data, re-pointing matches
// and registry rows, and purging intra-squad matches created by the merge.
func DedupDuplicates(ctx context.Context, pool *pgxpool.Pool, changedBy string, dryRun bool) (RunReport, error) {
	report := newReport("dedup", dryRun)
	defer report.finish()

	groups, err := findMergeGroups(ctx, pool)
	if err != nil {
		return report, fmt.Errorf("find merge groups: %w", err)
	}
	report.Found = len(groups)

	if dryRun {
		return report, nil
	}

	for _, g := range groups {
		if err := mergeOneGroup(ctx, pool, g, changedBy); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("group keeper=%d: %w", g.KeeperID, err))
			continue
		}
		report.Changed++
	}

	if report.Changed > 0 {
		if err := RefreshMaterializedViews(ctx, pool, defaultLogger()); err != nil {
			report.Errors = append(report.Errors, err)
		}
	}
	return report, nil
}

// findMergeGroups ranks Teams within each (canonical_name, birth_year,
// gender) bucket by (matches_played DESC, national_rank ASC NULLS LAST,
// elo_rating DESC, created_at ASC) and returns every group with more than
// one live team.
func findMergeGroups(ctx context.Context, pool *pgxpool.Pool) ([]mergeGroup, error) {
	rows, err := pool.Query(ctx, `
		SELECT canonical_name, birth_year, gender, team_id
		FROM (
			SELECT t.canonical_name, t.birth_year, t.gender, t.id AS team_id,
			       ROW_NUMBER() OVER (
			           PARTITION BY t.canonical_name, t.birth_year, t.gender
			           ORDER BY t.matches_played DESC, t.national_rank ASC NULLS LAST,
			                    t.elo_rating DESC, t.created_at ASC
			       ) AS rnk,
			       COUNT(*) OVER (PARTITION BY t.canonical_name, t.birth_year, t.gender) AS group_size
			FROM `+config.TeamsTable+` t
			WHERE t.merged_into IS NULL
		) ranked
		WHERE group_size > 1
		ORDER BY canonical_name, birth_year, gender, team_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byKey := map[string]*mergeGroup{}
	var order []string
	for rows.Next() {
		var name string
		var birthYear *int
		var gender *string
		var teamID int64
		if err := rows.Scan(&name, &birthYear, &gender, &teamID); err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%s|%v|%v", name, birthYear, gender)
		g, ok := byKey[key]
		if !ok {
			g = &mergeGroup{CanonicalName: name, BirthYear: birthYear, Gender: gender, KeeperID: teamID}
			byKey[key] = g
			order = append(order, key)
			continue
		}
		g.LoserIDs = append(g.LoserIDs, teamID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]mergeGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out, nil
}

// mergeOneGroup executes steps 2-9 of §4.G.1 for a single group, as the
// per-pair fallback the spec allows for the merge loop itself (the
// collision pre-check and intra-squad purge are bulk SQL within the
// group's transaction).
func mergeOneGroup(ctx context.Context, pool *pgxpool.Pool, g mergeGroup, changedBy string) error {
	return writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		// Step 2: rank preservation — keeper acquires the best of every
		// ranking field across the whole group.
		if _, err := tx.Exec(ctx, `
			UPDATE `+config.TeamsTable+` k
			SET national_rank = LEAST(k.national_rank, agg.best_national_rank),
			    state_rank = LEAST(k.state_rank, agg.best_state_rank),
			    regional_rank = LEAST(k.regional_rank, agg.best_regional_rank),
			    gotsport_rank = LEAST(k.gotsport_rank, agg.best_gotsport_rank),
			    points = GREATEST(k.points, agg.best_points)
			FROM (
				SELECT MIN(national_rank) AS best_national_rank,
				       MIN(state_rank) AS best_state_rank,
				       MIN(regional_rank) AS best_regional_rank,
				       MIN(gotsport_rank) AS best_gotsport_rank,
				       MAX(points) AS best_points
				FROM `+config.TeamsTable+`
				WHERE id = ANY($2) OR id = $1
			) agg
			WHERE k.id = $1`, g.KeeperID, g.LoserIDs); err != nil {
			return fmt.Errorf("rank preservation: %w", err)
		}

		// Step 6: re-point surviving matches' team IDs to the keeper.
		if _, err := tx.Exec(ctx, `
			UPDATE `+config.MatchesTable+`
			SET home_team_id = $1
			WHERE home_team_id = ANY($2) AND deleted_at IS NULL`, g.KeeperID, g.LoserIDs); err != nil {
			return fmt.Errorf("repoint home_team_id: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE `+config.MatchesTable+`
			SET away_team_id = $1
			WHERE away_team_id = ANY($2) AND deleted_at IS NULL`, g.KeeperID, g.LoserIDs); err != nil {
			return fmt.Errorf("repoint away_team_id: %w", err)
		}

		// Step 4-5: collision pre-check + intra-squad purge, now that
		// both sides of every affected match point at real team IDs.
		// Rank post-merge matches by semantic key and soft-delete every
		// row beyond rank 1, plus any row that collapsed onto itself.
		if _, err := tx.Exec(ctx, `
			WITH ranked AS (
				SELECT id, match_date, home_team_id, away_team_id,
				       ROW_NUMBER() OVER (
				           PARTITION BY match_date, home_team_id, away_team_id
				           ORDER BY (home_score IS NOT NULL) DESC, created_at ASC
				       ) AS rnk
				FROM `+config.MatchesTable+`
				WHERE deleted_at IS NULL AND (home_team_id = $1 OR away_team_id = $1)
			)
			UPDATE `+config.MatchesTable+` m
			SET deleted_at = now()
			FROM ranked r
			WHERE m.id = r.id AND (r.rnk > 1 OR r.home_team_id = r.away_team_id)`,
			g.KeeperID); err != nil {
			return fmt.Errorf("collision pre-check and intra-squad purge: %w", err)
		}

		// Step 7: re-point source_entity_map and canonical_teams.
		for _, loserID := range g.LoserIDs {
			if err := registry.RepointSourceEntities(ctx, tx, loserID, g.KeeperID); err != nil {
				return fmt.Errorf("repoint source entities: %w", err)
			}
			if err := registry.Repoint(ctx, tx, loserID, g.KeeperID); err != nil {
				return fmt.Errorf("repoint registry: %w", err)
			}
		}

		// league_standings: delete conflicting rows, then re-point.
		if _, err := tx.Exec(ctx, `
			DELETE FROM `+config.LeagueStandingsTable+`
			WHERE team_id = ANY($1) AND EXISTS (
				SELECT 1 FROM `+config.LeagueStandingsTable+` s2
				WHERE s2.team_id = $2 AND s2.league_id = `+config.LeagueStandingsTable+`.league_id
			)`, g.LoserIDs, g.KeeperID); err != nil {
			return fmt.Errorf("delete conflicting standings: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE `+config.LeagueStandingsTable+`
			SET team_id = $1
			WHERE team_id = ANY($2)`, g.KeeperID, g.LoserIDs); err != nil {
			return fmt.Errorf("repoint standings: %w", err)
		}

		// Step 8: delete rank_history rows for losers (FK).
		if _, err := tx.Exec(ctx, `
			DELETE FROM `+config.RankHistoryTable+` WHERE team_id = ANY($1)`, g.LoserIDs); err != nil {
			return fmt.Errorf("delete loser rank history: %w", err)
		}

		// Audit, then mark the loser teams merged into the keeper (step 9).
		for _, loserID := range g.LoserIDs {
			if err := audit.Write(ctx, tx, config.TeamsTable, loserID, audit.ActionDelete,
				nil, fmt.Sprintf(`{"merged_into": %d}`, g.KeeperID), changedBy); err != nil {
				return fmt.Errorf("audit team merge: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE `+config.TeamsTable+` SET merged_into = $1 WHERE id = ANY($2)`, g.KeeperID, g.LoserIDs); err != nil {
			return fmt.Errorf("mark loser teams merged: %w", err)
		}

		return nil
	})
}
