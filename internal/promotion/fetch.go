package promotion

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/config"
)

// FetchPendingRows loads up to limit validator-cleaned staging_games rows
// ready for promotion (§4.F step 1), joined against staging_events for the
// is_league flag recorded at scrape time. Ordered by scraped_at ascending
// per §5's batch ordering guarantee.
func FetchPendingRows(ctx context.Context, pool *pgxpool.Pool, limit int) ([]StagingRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT g.id, g.home_team_raw, g.away_team_raw, g.source_platform,
		       g.source_event_id, COALESCE(g.event_name, ''), COALESCE(e.is_league, true),
		       g.match_date, g.match_time, g.home_score, g.away_score, g.state,
		       g.source_match_key, g.scraped_at
		FROM `+config.StagingGamesTable+` g
		LEFT JOIN `+config.StagingEventsTable+` e
		  ON e.source_platform = g.source_platform AND e.source_event_id = g.source_event_id
		WHERE g.processed_at IS NULL
		ORDER BY g.scraped_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending staging rows: %w", err)
	}
	defer rows.Close()

	var out []StagingRow
	for rows.Next() {
		var r StagingRow
		if err := rows.Scan(&r.ID, &r.HomeTeamRaw, &r.AwayTeamRaw, &r.SourcePlatform,
			&r.SourceEventID, &r.EventName, &r.IsLeague,
			&r.MatchDate, &r.MatchTime, &r.HomeScore, &r.AwayScore, &r.State,
			&r.SourceMatchKey, &r.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan pending staging row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
