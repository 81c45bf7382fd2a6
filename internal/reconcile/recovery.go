package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/audit"
	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/writeauth"
)

// Recover implements §4.G.5: reads every DELETE audit entry by changedBy
// within [from, to] and reinserts each row, merging via ON CONFLICT when
// the semantic-uniqueness constraint would otherwise be violated. Safe to
// run repeatedly — the recovery round-trip law (§8) requires it.
func Recover(ctx context.Context, pool *pgxpool.Pool, changedBy string, from, to time.Time, recoveredBy string, dryRun bool) (RunReport, error) {
	report := newReport("recovery", dryRun)
	defer report.finish()

	entries, err := audit.FindDeletes(ctx, pool, changedBy, from, to)
	if err != nil {
		return report, fmt.Errorf("find deletes: %w", err)
	}
	report.Found = len(entries)

	if dryRun {
		return report, nil
	}

	for _, e := range entries {
		if err := recoverOne(ctx, pool, e, recoveredBy); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("audit entry %d (%s #%d): %w", e.ID, e.TableName, e.RecordID, err))
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

func recoverOne(ctx context.Context, pool *pgxpool.Pool, e audit.Entry, recoveredBy string) error {
	source := e.OldData
	if len(source) == 0 {
		source = e.NewData
	}
	if len(source) == 0 {
		return fmt.Errorf("audit entry has neither old_data nor new_data to restore from")
	}

	switch e.TableName {
	case config.MatchesTable:
		return recoverMatch(ctx, pool, e.RecordID, source, recoveredBy)
	case config.TeamsTable:
		return recoverTeam(ctx, pool, e.RecordID)
	default:
		return fmt.Errorf("recovery not implemented for table %q", e.TableName)
	}
}

// recoverMatch un-deletes the soft-deleted match recordID (the audit
// entry's record id) by clearing deleted_at; if that row no longer exists
// (garbage cleanup hard-deletes matches), it is reinserted from the audit
// snapshot via ON CONFLICT merge.
func recoverMatch(ctx context.Context, pool *pgxpool.Pool, recordID int64, snapshot json.RawMessage, recoveredBy string) error {
	var row struct {
		ID             int64      `json:"id"`
		SourceMatchKey string     `json:"source_match_key"`
		MatchDate      time.Time  `json:"match_date"`
		HomeTeamID     int64      `json:"home_team_id"`
		AwayTeamID     int64      `json:"away_team_id"`
		HomeScore      *int       `json:"home_score"`
		AwayScore      *int       `json:"away_score"`
		LeagueID       *int64     `json:"league_id"`
		TournamentID   *int64     `json:"tournament_id"`
	}

	return writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE `+config.MatchesTable+` SET deleted_at = NULL, merged_into = NULL WHERE id = $1`, recordID)
		if err != nil {
			return fmt.Errorf("restore soft-deleted match: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		if err := json.Unmarshal(snapshot, &row); err != nil {
			return fmt.Errorf("decode match snapshot: %w", err)
		}

		// Row no longer exists: reinsert from the snapshot, merging on the
		// semantic-uniqueness constraint and preferring existing non-null
		// scores / linkage over the restored ones.
		_, err = tx.Exec(ctx, `
			INSERT INTO `+config.MatchesTable+`
				(source_match_key, match_date, home_team_id, away_team_id, home_score, away_score, league_id, tournament_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (source_match_key) DO UPDATE SET
				home_score = COALESCE(`+config.MatchesTable+`.home_score, EXCLUDED.home_score),
				away_score = COALESCE(`+config.MatchesTable+`.away_score, EXCLUDED.away_score),
				league_id = COALESCE(`+config.MatchesTable+`.league_id, EXCLUDED.league_id),
				tournament_id = COALESCE(`+config.MatchesTable+`.tournament_id, EXCLUDED.tournament_id)`,
			row.SourceMatchKey, row.MatchDate, row.HomeTeamID, row.AwayTeamID, row.HomeScore, row.AwayScore, row.LeagueID, row.TournamentID)
		if err != nil {
			return fmt.Errorf("reinsert match from snapshot: %w", err)
		}
		return nil
	})
}

// recoverTeam un-merges a team previously absorbed by a dedup/orphan
// operator, clearing merged_into so it is live again.
func recoverTeam(ctx context.Context, pool *pgxpool.Pool, teamID int64) error {
	return writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE `+config.TeamsTable+` SET merged_into = NULL WHERE id = $1`, teamID)
		if err != nil {
			return fmt.Errorf("restore merged team: %w", err)
		}
		return nil
	})
}
