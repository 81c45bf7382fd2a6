// Package registry implements the canonical registry (spec §4.E): the
// durable mapping from a normalized team identity to a production team_id,
// plus per-source idempotence via source_entity_map. canonical_teams and
// the production teams table are both write-protected, but registry writes
// are never a unit of work on their own — they're always one step inside a
// caller's larger transaction (one staging row's promotion, one merge
// group's reconciliation), so every function here takes the caller's tx
// and participates in it rather than opening a connection of its own.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/matchpipe/internal/config"
)

// ErrNotFound is returned by Find when no registry row matches.
var ErrNotFound = errors.New("registry: no matching team")

// Key is the four-column unique identity canonical_teams indexes on.
type Key struct {
	CanonicalName string
	BirthYear     *int
	Gender        *string
	State         *string
}

// Find resolves a Key to a production team_id via exact match first, then
// falls back to an alias-contains lookup (§4.E). tx must belong to the
// caller's enclosing unit of work so the read sees that unit's own
// uncommitted writes.
func Find(ctx context.Context, tx pgx.Tx, key Key) (int64, error) {
	var teamID int64
	err := tx.QueryRow(ctx, "registry_find_exact", key.CanonicalName, key.BirthYear, key.Gender, key.State).Scan(&teamID)
	if err == nil {
		return teamID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("exact registry lookup: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT team_id FROM `+config.CanonicalTeamsTable+`
		WHERE birth_year IS NOT DISTINCT FROM $1 AND gender IS NOT DISTINCT FROM $2
		  AND state IS NOT DISTINCT FROM $3 AND $4 = ANY(aliases)
		LIMIT 1`, key.BirthYear, key.Gender, key.State, key.CanonicalName).Scan(&teamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("alias registry lookup: %w", err)
	}
	return teamID, nil
}

// Register idempotently upserts a registry row for teamID. If a row already
// exists for this key it appends nameVariant to aliases instead of
// conflicting; if it doesn't, it creates one with key's canonical name and
// nameVariant as its sole alias. Runs on tx: the row only becomes
// visible to other connections once the caller's transaction commits.
func Register(ctx context.Context, tx pgx.Tx, key Key, teamID int64, nameVariant string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO `+config.CanonicalTeamsTable+`
			(canonical_name, birth_year, gender, state, team_id, aliases)
		VALUES ($1, $2, $3, $4, $5, ARRAY[$6]::text[])
		ON CONFLICT (canonical_name, birth_year, gender, state) DO UPDATE
		SET team_id = EXCLUDED.team_id,
		    aliases = CASE
		        WHEN $6 = ANY(`+config.CanonicalTeamsTable+`.aliases) THEN `+config.CanonicalTeamsTable+`.aliases
		        ELSE array_append(`+config.CanonicalTeamsTable+`.aliases, $6)
		    END`,
		key.CanonicalName, key.BirthYear, key.Gender, key.State, teamID, nameVariant)
	if err != nil {
		return fmt.Errorf("register canonical team: %w", err)
	}
	return nil
}

// Repoint moves every registry row's team_id from oldTeamID to newTeamID,
// used during a team merge (§4.G.1, §4.G.2). Runs on tx so a rollback of
// the merge group leaves the registry pointed at the pre-merge teams.
func Repoint(ctx context.Context, tx pgx.Tx, oldTeamID, newTeamID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE `+config.CanonicalTeamsTable+`
		SET team_id = $2
		WHERE team_id = $1`, oldTeamID, newTeamID)
	if err != nil {
		return fmt.Errorf("repoint registry rows: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// source_entity_map — per-source idempotence
// --------------------------------------------------------------------------

// SourceKey identifies a raw per-source entity the pipeline has bound to a
// production record before.
type SourceKey struct {
	SourcePlatform   string
	SourceEntityType string // e.g. "team"
	SourceEntityKey  string // the raw scraper-supplied key
}

// LookupSourceEntity resolves a previously-bound source key to its
// production id, or ErrNotFound.
func LookupSourceEntity(ctx context.Context, tx pgx.Tx, key SourceKey) (int64, error) {
	var productionID int64
	err := tx.QueryRow(ctx, "source_entity_lookup", key.SourcePlatform, key.SourceEntityType, key.SourceEntityKey).Scan(&productionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("source entity lookup: %w", err)
	}
	return productionID, nil
}

// BindSourceEntity idempotently records that sourceKey resolves to
// productionID, so a re-submission of the same raw key resolves to the
// same production record without re-running identity resolution. Runs on
// tx so the binding never commits ahead of the production row it points
// at.
func BindSourceEntity(ctx context.Context, tx pgx.Tx, key SourceKey, productionID int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO `+config.SourceEntityMapTable+`
			(source_platform, source_entity_type, source_entity_key, production_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_platform, source_entity_type, source_entity_key)
		DO UPDATE SET production_id = EXCLUDED.production_id`,
		key.SourcePlatform, key.SourceEntityType, key.SourceEntityKey, productionID)
	if err != nil {
		return fmt.Errorf("bind source entity: %w", err)
	}
	return nil
}

// RepointSourceEntities moves every binding from oldProductionID to
// newProductionID, used during a team merge. Runs on the same tx as
// Repoint so both halves of the registry move together or not at all.
func RepointSourceEntities(ctx context.Context, tx pgx.Tx, oldProductionID, newProductionID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE `+config.SourceEntityMapTable+`
		SET production_id = $2
		WHERE production_id = $1`, oldProductionID, newProductionID)
	if err != nil {
		return fmt.Errorf("repoint source entity bindings: %w", err)
	}
	return nil
}
