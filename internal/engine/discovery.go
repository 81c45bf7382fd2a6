package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/matchpipe/internal/adapter"
	"github.com/albapepper/matchpipe/internal/config"
)

// discoverEvents implements §4.B.3's precedence: explicit eventId →
// adapter's own discoverEvents → universal database discovery → adapter's
// static list.
func (e *Engine) discoverEvents(ctx context.Context, a *adapter.Adapter, opts Options) ([]adapter.Event, error) {
	if opts.EventID != "" {
		return []adapter.Event{{SourceEventID: opts.EventID, Year: time.Now().UTC().Year()}}, nil
	}

	if a.Discovery.DiscoverEvents != nil {
		events, err := a.Discovery.DiscoverEvents(ctx, adapterFacade{engine: e, a: a})
		if err != nil {
			return nil, fmt.Errorf("adapter discovery: %w", err)
		}
		return events, nil
	}

	events, err := e.discoverFromDatabase(ctx, a.ID, 14, 60)
	if err != nil {
		return nil, fmt.Errorf("universal database discovery: %w", err)
	}
	if len(events) > 0 {
		return events, nil
	}

	return a.Discovery.StaticEvents, nil
}

// discoverFromDatabase implements §4.B.7: query production matches whose
// source_match_key begins with sourcePrefix and whose match_date falls in
// [now-lookbackDays, now+forwardDays], collect distinct league/tournament
// IDs, then fetch their source_event_id and name.
func (e *Engine) discoverFromDatabase(ctx context.Context, sourcePrefix string, lookbackDays, forwardDays int) ([]adapter.Event, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -lookbackDays)
	to := now.AddDate(0, 0, forwardDays)

	rows, err := e.pool.Query(ctx, `
		SELECT l.source_event_id, l.name, true AS is_league
		FROM `+config.LeaguesTable+` l
		WHERE l.id IN (
			SELECT DISTINCT league_id FROM `+config.MatchesTable+`
			WHERE source_match_key LIKE $1 AND match_date BETWEEN $2 AND $3
			  AND league_id IS NOT NULL
		)
		UNION ALL
		SELECT t.source_event_id, t.name, false AS is_league
		FROM `+config.TournamentsTable+` t
		WHERE t.id IN (
			SELECT DISTINCT tournament_id FROM `+config.MatchesTable+`
			WHERE source_match_key LIKE $1 AND match_date BETWEEN $2 AND $3
			  AND tournament_id IS NOT NULL
		)`, sourcePrefix+"-%", from, to)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []adapter.Event
	for rows.Next() {
		var ev adapter.Event
		if err := rows.Scan(&ev.SourceEventID, &ev.Name, &ev.IsLeague); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Year = now.Year()
		events = append(events, ev)
	}
	return events, rows.Err()
}
