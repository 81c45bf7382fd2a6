// Package promotion implements the promotion engine (spec §4.F): converts
// cleaned staging_games rows into production Teams and Matches, one row
// per transaction, with write authorization pre-granted on the connection.
// Grounded on the teacher's fixture.SeedFixture / seed.SeedNBA shape —
// per-row work inside one function, errors routed to a result struct,
// continue on per-row failure rather than aborting the batch.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/cache"
	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/normalizer"
	"github.com/albapepper/matchpipe/internal/registry"
	"github.com/albapepper/matchpipe/internal/writeauth"
)

// StagingRow is a cleaned, validator-approved row ready for promotion.
type StagingRow struct {
	ID             int64
	HomeTeamRaw    string
	AwayTeamRaw    string
	SourcePlatform string
	SourceEventID  string
	EventName      string
	IsLeague       bool
	MatchDate      time.Time
	MatchTime      *string
	HomeScore      *int
	AwayScore      *int
	State          *string
	SourceMatchKey string
	ScrapedAt      time.Time
}

// RowOutcome records what happened to one staging row.
type RowOutcome struct {
	StagingID   int64
	MatchID     int64
	Created     bool // true if a new Match was inserted, false if merged into an existing one
	Err         error
}

// Stats summarizes one PromoteBatch call.
type Stats struct {
	Processed    int
	MatchesMade  int
	MatchesMerged int
	Errors       []error
}

// PromoteBatch promotes rows in ascending ScrapedAt order (§5 ordering
// guarantee) using a fresh run ID to tag any audit rows written during
// conflict merges.
func PromoteBatch(ctx context.Context, pool *pgxpool.Pool, seasonYear int, rows []StagingRow) Stats {
	stats := Stats{}
	runID := uuid.NewString()
	teamCache := cache.New(cache.DefaultTTL)

	for _, row := range rows {
		outcome := promoteOne(ctx, pool, seasonYear, runID, row, teamCache)
		stats.Processed++
		if outcome.Err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("staging row %d: %w", row.ID, outcome.Err))
			continue
		}
		if outcome.Created {
			stats.MatchesMade++
		} else {
			stats.MatchesMerged++
		}
	}
	return stats
}

func promoteOne(ctx context.Context, pool *pgxpool.Pool, seasonYear int, runID string, row StagingRow, teamCache *cache.TeamCache) RowOutcome {
	out := RowOutcome{StagingID: row.ID}

	err := writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		homeIdentity := normalizer.ExtractIdentity(row.HomeTeamRaw)
		awayIdentity := normalizer.ExtractIdentity(row.AwayTeamRaw)

		homeID, err := resolveTeam(ctx, tx, row.SourcePlatform, row.HomeTeamRaw, homeIdentity, row.State, seasonYear, teamCache)
		if err != nil {
			return fmt.Errorf("resolve home team: %w", err)
		}
		awayID, err := resolveTeam(ctx, tx, row.SourcePlatform, row.AwayTeamRaw, awayIdentity, row.State, seasonYear, teamCache)
		if err != nil {
			return fmt.Errorf("resolve away team: %w", err)
		}
		if homeID == awayID {
			return fmt.Errorf("home and away resolved to the same team id %d", homeID)
		}

		eventID, err := resolveEvent(ctx, tx, row.SourcePlatform, row.SourceEventID, row.EventName, row.IsLeague, seasonYear)
		if err != nil {
			return fmt.Errorf("resolve event: %w", err)
		}

		matchID, created, err := upsertMatch(ctx, tx, row, homeID, awayID, eventID, runID)
		if err != nil {
			return fmt.Errorf("upsert match: %w", err)
		}
		out.MatchID = matchID
		out.Created = created

		if _, err := tx.Exec(ctx, `
			UPDATE `+config.StagingGamesTable+` SET processed_at = now() WHERE id = $1`, row.ID); err != nil {
			return fmt.Errorf("mark staging row processed: %w", err)
		}
		return nil
	})
	out.Err = err
	return out
}

// resolveTeam implements §4.F step 2: source-entity map first, then
// canonical registry, then create. A batch-scoped TTL cache short-circuits
// the source-entity lookup for a team seen more than once in this batch
// (a common case: the same club appears as home or away in many matches).
func resolveTeam(ctx context.Context, tx pgx.Tx, sourcePlatform, rawName string, identity normalizer.Identity, state *string, seasonYear int, teamCache *cache.TeamCache) (int64, error) {
	srcKey := registry.SourceKey{
		SourcePlatform:   sourcePlatform,
		SourceEntityType: "team",
		SourceEntityKey:  rawName,
	}
	cacheKey := sourcePlatform + ":" + rawName

	if teamCache != nil {
		if id, ok := teamCache.Get(cacheKey); ok {
			return id, nil
		}
	}

	if id, err := registry.LookupSourceEntity(ctx, tx, srcKey); err == nil {
		if teamCache != nil {
			teamCache.Set(cacheKey, id)
		}
		return id, nil
	} else if !errors.Is(err, registry.ErrNotFound) {
		return 0, err
	}

	birthYear := identity.BirthYear
	if birthYear == nil {
		birthYear = normalizer.ExtractBirthYearForSeason(rawName, seasonYear)
	}

	key := registry.Key{
		CanonicalName: identity.CanonicalName,
		BirthYear:     birthYear,
		Gender:        identity.Gender,
		State:         state,
	}
	if id, err := registry.Find(ctx, tx, key); err == nil {
		if err := registry.BindSourceEntity(ctx, tx, srcKey, id); err != nil {
			return 0, err
		}
		if teamCache != nil {
			teamCache.Set(cacheKey, id)
		}
		return id, nil
	} else if !errors.Is(err, registry.ErrNotFound) {
		return 0, err
	}

	// Null birth_year/gender teams are still created — they become
	// reconciliation targets later (§4.F step 2).
	var teamID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO `+config.TeamsTable+`
			(display_name, canonical_name, birth_year, gender, state, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id`, rawName, identity.CanonicalName, birthYear, identity.Gender, state).Scan(&teamID)
	if err != nil {
		return 0, fmt.Errorf("create team: %w", err)
	}

	if err := registry.Register(ctx, tx, key, teamID, rawName); err != nil {
		return 0, err
	}
	if err := registry.BindSourceEntity(ctx, tx, srcKey, teamID); err != nil {
		return 0, err
	}
	if teamCache != nil {
		teamCache.Set(cacheKey, teamID)
	}
	return teamID, nil
}

// resolveEvent implements §4.F step 3: resolve by source_event_id, create
// if missing. Leagues and tournaments are separate tables sharing the same
// source_event_id namespace per adapter.
func resolveEvent(ctx context.Context, tx pgx.Tx, sourcePlatform, sourceEventID, eventName string, isLeague bool, seasonYear int) (int64, error) {
	table := config.TournamentsTable
	if isLeague {
		table = config.LeaguesTable
	}

	var eventID int64
	err := tx.QueryRow(ctx, `
		SELECT id FROM `+table+`
		WHERE source_platform = $1 AND source_event_id = $2`, sourcePlatform, sourceEventID).Scan(&eventID)
	if err == nil {
		return eventID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup event: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO `+table+` (source_platform, source_event_id, name, year, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id`, sourcePlatform, sourceEventID, eventName, seasonYear).Scan(&eventID)
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}
	return eventID, nil
}

// upsertMatch implements §4.F steps 4-6: compose, insert with a
// conflict-merge on source_match_key that prefers real data over nulls and
// over the (0,0) anti-pattern, and detect a semantic-uniqueness collision
// on (match_date, home_team_id, away_team_id).
func upsertMatch(ctx context.Context, tx pgx.Tx, row StagingRow, homeID, awayID, eventID int64, runID string) (int64, bool, error) {
	leagueID, tournamentID := eventLinkage(row.IsLeague, eventID)

	var matchID int64
	var inserted bool
	err := tx.QueryRow(ctx, `
		INSERT INTO `+config.MatchesTable+`
			(source_match_key, match_date, match_time, home_team_id, away_team_id,
			 home_score, away_score, league_id, tournament_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (source_match_key) DO UPDATE SET
			home_score = CASE
				WHEN `+config.MatchesTable+`.home_score IS NOT NULL AND `+config.MatchesTable+`.away_score IS NOT NULL
				     AND NOT (`+config.MatchesTable+`.home_score = 0 AND `+config.MatchesTable+`.away_score = 0)
				THEN `+config.MatchesTable+`.home_score
				WHEN EXCLUDED.home_score IS NOT NULL THEN EXCLUDED.home_score
				ELSE `+config.MatchesTable+`.home_score
			END,
			away_score = CASE
				WHEN `+config.MatchesTable+`.home_score IS NOT NULL AND `+config.MatchesTable+`.away_score IS NOT NULL
				     AND NOT (`+config.MatchesTable+`.home_score = 0 AND `+config.MatchesTable+`.away_score = 0)
				THEN `+config.MatchesTable+`.away_score
				WHEN EXCLUDED.away_score IS NOT NULL THEN EXCLUDED.away_score
				ELSE `+config.MatchesTable+`.away_score
			END,
			league_id = COALESCE(`+config.MatchesTable+`.league_id, EXCLUDED.league_id),
			tournament_id = COALESCE(`+config.MatchesTable+`.tournament_id, EXCLUDED.tournament_id)
		RETURNING id, (xmax = 0) AS inserted`,
		row.SourceMatchKey, row.MatchDate, row.MatchTime, homeID, awayID,
		row.HomeScore, row.AwayScore, leagueID, tournamentID).Scan(&matchID, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("insert/merge match by source_match_key: %w", err)
	}

	// Semantic-uniqueness collision check (§4.F step 6): a different
	// source_match_key landed on the same (date, home, away) tuple.
	var collidingID int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM `+config.MatchesTable+`
		WHERE match_date = $1 AND home_team_id = $2 AND away_team_id = $3
		  AND deleted_at IS NULL AND id <> $4
		ORDER BY (home_score IS NOT NULL) DESC, created_at ASC
		LIMIT 1`, row.MatchDate, homeID, awayID, matchID).Scan(&collidingID)
	if err == nil {
		mergedID, mergeErr := mergeCollidingMatch(ctx, tx, collidingID, matchID, runID)
		if mergeErr != nil {
			return 0, false, mergeErr
		}
		return mergedID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("check semantic-uniqueness collision: %w", err)
	}

	return matchID, inserted, nil
}

// mergeCollidingMatch keeps whichever of the two rows has real scores,
// soft-deletes the other, and logs the merge — grounded on §4.F step 6.
func mergeCollidingMatch(ctx context.Context, tx pgx.Tx, existingID, newID int64, runID string) (int64, error) {
	var existingHasScore, newHasScore bool
	if err := tx.QueryRow(ctx, `
		SELECT home_score IS NOT NULL FROM `+config.MatchesTable+` WHERE id = $1`, existingID).Scan(&existingHasScore); err != nil {
		return 0, fmt.Errorf("check existing match score: %w", err)
	}
	if err := tx.QueryRow(ctx, `
		SELECT home_score IS NOT NULL FROM `+config.MatchesTable+` WHERE id = $1`, newID).Scan(&newHasScore); err != nil {
		return 0, fmt.Errorf("check new match score: %w", err)
	}

	keeper, loser := existingID, newID
	if newHasScore && !existingHasScore {
		keeper, loser = newID, existingID
	}

	if _, err := tx.Exec(ctx, `
		UPDATE `+config.MatchesTable+` SET deleted_at = now(), merged_into = $2 WHERE id = $1`, loser, keeper); err != nil {
		return 0, fmt.Errorf("soft-delete colliding match: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO `+config.AuditLogTable+`
			(table_name, record_id, action, new_data, changed_by, changed_at)
		VALUES ($1, $2, 'DELETE', $3, $4, now())`,
		config.MatchesTable, loser, fmt.Sprintf(`{"kept_match_id": %d}`, keeper), "promotion:"+runID); err != nil {
		return 0, fmt.Errorf("audit colliding match merge: %w", err)
	}

	return keeper, nil
}

func eventLinkage(isLeague bool, eventID int64) (leagueID, tournamentID *int64) {
	if isLeague {
		return &eventID, nil
	}
	return nil, &eventID
}
