package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/albapepper/matchpipe/internal/adapter"
	"github.com/albapepper/matchpipe/internal/config"
)

const stagingBatchSize = 500

// writeStaging implements §4.B.8: transforms parsed matches into the
// staging_games schema and bulk-inserts in batches via a single multi-row
// INSERT ... ON CONFLICT (source_match_key) DO NOTHING. Records the
// adapter's view of the event in staging_events. The engine never writes
// to production tables — staging is unprotected by the write-auth gate,
// so no authorize_pipeline_write call is needed here.
func (e *Engine) writeStaging(ctx context.Context, a *adapter.Adapter, ev adapter.Event, matches []adapter.ParsedMatch) (int, error) {
	if err := e.recordStagingEvent(ctx, a, ev); err != nil {
		return 0, fmt.Errorf("record staging event: %w", err)
	}

	now := time.Now().UTC()
	staged := 0

	for start := 0; start < len(matches); start += stagingBatchSize {
		end := start + stagingBatchSize
		if end > len(matches) {
			end = len(matches)
		}
		batch := matches[start:end]

		n, err := e.insertStagingBatch(ctx, a, ev, batch, now)
		if err != nil {
			return staged, err
		}
		staged += n
	}
	return staged, nil
}

func (e *Engine) insertStagingBatch(ctx context.Context, a *adapter.Adapter, ev adapter.Event, batch []adapter.ParsedMatch, now time.Time) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	cols := []string{
		"source_platform", "source_match_key", "home_team_raw", "away_team_raw",
		"match_date", "match_time", "home_score", "away_score", "venue", "state",
		"source_event_id", "event_name", "status", "raw_data", "scraped_at",
	}

	rows := make([][]any, 0, len(batch))
	for _, m := range batch {
		key := a.BuildMatchKey(ev.SourceEventID, m.MatchNumber)
		raw, err := json.Marshal(m)
		if err != nil {
			return 0, fmt.Errorf("marshal raw match data: %w", err)
		}

		rows = append(rows, []any{
			a.ID, key, m.HomeTeamRaw, m.AwayTeamRaw, m.MatchDate, m.MatchTime,
			m.HomeScore, m.AwayScore, m.Venue, m.State, ev.SourceEventID, ev.Name,
			matchStatus(m, now), raw, now,
		})
	}

	return e.insertStagingBatchPlain(ctx, cols, rows)
}

// insertStagingBatchPlain performs the literal bulk multi-row
// INSERT ... ON CONFLICT (source_match_key) DO NOTHING of §4.B.8.
func (e *Engine) insertStagingBatchPlain(ctx context.Context, cols []string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `INSERT INTO ` + config.StagingGamesTable + ` (` + joinCols(cols) + `) VALUES `
	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			query += ", "
		}
		query += "("
		for j := range row {
			if j > 0 {
				query += ", "
			}
			args = append(args, row[j])
			query += fmt.Sprintf("$%d", len(args))
		}
		query += ")"
	}
	query += ` ON CONFLICT (source_match_key) DO NOTHING`

	tag, err := e.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk insert staging batch: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func (e *Engine) recordStagingEvent(ctx context.Context, a *adapter.Adapter, ev adapter.Event) error {
	_, err := e.pool.Exec(ctx, `
		INSERT INTO `+config.StagingEventsTable+`
			(source_platform, source_event_id, name, year, is_league, discovered_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (source_platform, source_event_id) DO UPDATE SET name = EXCLUDED.name`,
		a.ID, ev.SourceEventID, ev.Name, ev.Year, ev.IsLeague)
	return err
}
