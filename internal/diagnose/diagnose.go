// Package diagnose implements the read-only audit/diagnostic surface of
// §4.I: a team lookup and a pipeline-wide health check, each anomaly
// paired with the reconciliation operator that would fix it. Grounded on
// internal/api/handler/handler.go's HealthCheck family, generalized from
// "is Postgres reachable" to "is the pipeline's data in a healthy state".
package diagnose

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Anomaly is one detected problem paired with the fix.
type Anomaly struct {
	Category    string
	Count       int
	Description string
	Remedy      string // the CLI invocation that fixes it
}

// HealthReport is the full structured summary printed by `diagnose --health-check`.
type HealthReport struct {
	RegistryCoveragePercent float64
	DuplicateGroupCount     int
	NullMetadataCount       int
	StatsMismatchCount      int
	StagingBacklogCount     int
	OrphanRate              float64
	WriteProtectionEnabled  bool
	Anomalies               []Anomaly
}

// TeamReport is the structured summary printed by `diagnose --team`.
type TeamReport struct {
	TeamID         int64
	DisplayName    string
	CanonicalName  string
	BirthYear      *int
	Gender         *string
	State          *string
	MergedInto     *int64
	MatchesPlayed  int
	SourceBindings []SourceBinding
	Anomalies      []Anomaly
}

type SourceBinding struct {
	SourcePlatform   string
	SourceEntityType string
	SourceEntityKey  string
}

// HealthCheck runs every check in §4.I and returns a structured report.
// Every query is read-only; HealthCheck never calls writeauth.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, protectionEnabled func(context.Context, *pgxpool.Pool) (bool, error)) (HealthReport, error) {
	var report HealthReport

	if err := queryRegistryCoverage(ctx, pool, &report); err != nil {
		return report, fmt.Errorf("registry coverage: %w", err)
	}
	if err := queryDuplicateGroups(ctx, pool, &report); err != nil {
		return report, fmt.Errorf("duplicate groups: %w", err)
	}
	if err := queryNullMetadata(ctx, pool, &report); err != nil {
		return report, fmt.Errorf("null metadata: %w", err)
	}
	if err := queryStatsMismatches(ctx, pool, &report); err != nil {
		return report, fmt.Errorf("stats mismatches: %w", err)
	}
	if err := queryStagingBacklog(ctx, pool, &report); err != nil {
		return report, fmt.Errorf("staging backlog: %w", err)
	}
	if err := queryOrphanRate(ctx, pool, &report); err != nil {
		return report, fmt.Errorf("orphan rate: %w", err)
	}

	enabled, err := protectionEnabled(ctx, pool)
	if err != nil {
		return report, fmt.Errorf("write protection status: %w", err)
	}
	report.WriteProtectionEnabled = enabled
	if !enabled {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Category:    "write_protection",
			Count:       1,
			Description: "global write protection is disabled (emergency break-glass active)",
			Remedy:      "re-enable write protection once the emergency operation is complete",
		})
	}

	return report, nil
}

func queryRegistryCoverage(ctx context.Context, pool *pgxpool.Pool, r *HealthReport) error {
	var total, covered int
	err := pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE EXISTS (
			SELECT 1 FROM canonical_teams ct WHERE ct.canonical_name = t.canonical_name
		))
		FROM teams t WHERE t.merged_into IS NULL`).Scan(&total, &covered)
	if err != nil {
		return err
	}
	if total > 0 {
		r.RegistryCoveragePercent = 100 * float64(covered) / float64(total)
	}
	if total > 0 && r.RegistryCoveragePercent < 90 {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Category:    "registry_coverage",
			Count:       total - covered,
			Description: fmt.Sprintf("%d active teams have no canonical registry entry", total-covered),
			Remedy:      "reconcile orphan --execute (registers only the teams whose null birth_year/gender it fills; no operator registers teams whose metadata is already complete)",
		})
	}
	return nil
}

func queryDuplicateGroups(ctx context.Context, pool *pgxpool.Pool, r *HealthReport) error {
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT canonical_name, birth_year, gender
			FROM teams WHERE merged_into IS NULL
			GROUP BY canonical_name, birth_year, gender
			HAVING count(*) > 1
		) dup`).Scan(&r.DuplicateGroupCount)
	if err != nil {
		return err
	}
	if r.DuplicateGroupCount > 0 {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Category:    "duplicate_groups",
			Count:       r.DuplicateGroupCount,
			Description: fmt.Sprintf("%d groups of teams share identity but are not merged", r.DuplicateGroupCount),
			Remedy:      "reconcile dedup --execute",
		})
	}
	return nil
}

func queryNullMetadata(ctx context.Context, pool *pgxpool.Pool, r *HealthReport) error {
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM teams
		WHERE merged_into IS NULL AND (birth_year IS NULL OR gender IS NULL)`).Scan(&r.NullMetadataCount)
	if err != nil {
		return err
	}
	if r.NullMetadataCount > 0 {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Category:    "null_metadata",
			Count:       r.NullMetadataCount,
			Description: fmt.Sprintf("%d teams are missing birth_year or gender", r.NullMetadataCount),
			Remedy:      "reconcile orphan --execute",
		})
	}
	return nil
}

func queryStatsMismatches(ctx context.Context, pool *pgxpool.Pool, r *HealthReport) error {
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM teams t
		WHERE t.merged_into IS NULL AND t.matches_played != (
			SELECT count(*) FROM matches m
			WHERE (m.home_team_id = t.id OR m.away_team_id = t.id) AND m.deleted_at IS NULL
		)`).Scan(&r.StatsMismatchCount)
	if err != nil {
		return err
	}
	if r.StatsMismatchCount > 0 {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Category:    "stats_mismatch",
			Count:       r.StatsMismatchCount,
			Description: fmt.Sprintf("%d teams have a stored matches_played that disagrees with actual matches", r.StatsMismatchCount),
			Remedy:      "reconcile orphan --execute (recomputes team stats as its final phase)",
		})
	}
	return nil
}

func queryStagingBacklog(ctx context.Context, pool *pgxpool.Pool, r *HealthReport) error {
	err := pool.QueryRow(ctx, `SELECT count(*) FROM staging_games WHERE processed_at IS NULL`).Scan(&r.StagingBacklogCount)
	if err != nil {
		return err
	}
	if r.StagingBacklogCount > 1000 {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Category:    "staging_backlog",
			Count:       r.StagingBacklogCount,
			Description: fmt.Sprintf("%d unprocessed staging rows (backlog)", r.StagingBacklogCount),
			Remedy:      "promote --process-staging --batch-size 500",
		})
	}
	return nil
}

func queryOrphanRate(ctx context.Context, pool *pgxpool.Pool, r *HealthReport) error {
	var total, orphans int
	err := pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE state IS NULL)
		FROM teams WHERE merged_into IS NULL`).Scan(&total, &orphans)
	if err != nil {
		return err
	}
	if total > 0 {
		r.OrphanRate = 100 * float64(orphans) / float64(total)
	}
	if r.OrphanRate > 15 {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Category:    "orphan_rate",
			Count:       orphans,
			Description: fmt.Sprintf("%.1f%% of teams have no state (likely orphaned sub-squads)", r.OrphanRate),
			Remedy:      "reconcile orphan --execute",
		})
	}
	return nil
}

// LookupTeam implements `diagnose --team`/`--team-id`: resolve a team,
// report its metadata, its source bindings, and anomalies specific to it.
func LookupTeam(ctx context.Context, pool *pgxpool.Pool, teamID int64) (TeamReport, error) {
	var r TeamReport
	r.TeamID = teamID

	err := pool.QueryRow(ctx, `
		SELECT display_name, canonical_name, birth_year, gender, state, merged_into, matches_played
		FROM teams WHERE id = $1`, teamID).Scan(
		&r.DisplayName, &r.CanonicalName, &r.BirthYear, &r.Gender, &r.State, &r.MergedInto, &r.MatchesPlayed)
	if err != nil {
		if err == pgx.ErrNoRows {
			return r, fmt.Errorf("no team with id %d", teamID)
		}
		return r, fmt.Errorf("lookup team %d: %w", teamID, err)
	}

	rows, err := pool.Query(ctx, `
		SELECT source_platform, source_entity_type, source_entity_key
		FROM source_entity_map WHERE production_id = $1`, teamID)
	if err != nil {
		return r, fmt.Errorf("lookup source bindings for team %d: %w", teamID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var b SourceBinding
		if err := rows.Scan(&b.SourcePlatform, &b.SourceEntityType, &b.SourceEntityKey); err != nil {
			return r, fmt.Errorf("scan source binding: %w", err)
		}
		r.SourceBindings = append(r.SourceBindings, b)
	}
	if err := rows.Err(); err != nil {
		return r, err
	}

	if r.MergedInto != nil {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Category:    "merged",
			Count:       1,
			Description: fmt.Sprintf("team %d has been merged into team %d", teamID, *r.MergedInto),
			Remedy:      fmt.Sprintf("lookup team %d for the live record", *r.MergedInto),
		})
	}
	if r.BirthYear == nil || r.Gender == nil {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Category:    "null_metadata",
			Count:       1,
			Description: "missing birth_year or gender",
			Remedy:      "reconcile orphan --execute",
		})
	}
	if r.State == nil {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Category:    "orphan",
			Count:       1,
			Description: "missing state — may be an orphaned sub-squad",
			Remedy:      "reconcile orphan --execute",
		})
	}

	return r, nil
}

// LookupTeamByName implements `diagnose --team "<name>"`: finds the first
// live team whose canonical or display name equals name (most matches
// played first), then delegates to LookupTeam.
func LookupTeamByName(ctx context.Context, pool *pgxpool.Pool, name string) (TeamReport, error) {
	var teamID int64
	err := pool.QueryRow(ctx, `
		SELECT id FROM teams WHERE (canonical_name = $1 OR display_name = $1) AND merged_into IS NULL
		ORDER BY matches_played DESC LIMIT 1`, name).Scan(&teamID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return TeamReport{}, fmt.Errorf("no team matching %q", name)
		}
		return TeamReport{}, fmt.Errorf("lookup team by name %q: %w", name, err)
	}
	return LookupTeam(ctx, pool, teamID)
}
