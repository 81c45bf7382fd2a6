// Package db provides a pgxpool-based connection pool with prepared
// statement registration, per-job statement timeouts, and a write-capability
// probe used by the scraper engine's startup sequence (§4.B.2).
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool with a long statement
// timeout suitable for reconciliation batches. Use NewProbe for
// shorter-lived probe connections.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	return newPool(ctx, cfg, cfg.StatementTimeoutLong)
}

// NewProbe creates a pool whose statement timeout is tuned for short
// probes and health checks (§5 "every SQL statement runs under a
// connection-level statement timeout").
func NewProbe(ctx context.Context, cfg *config.Config) (*Pool, error) {
	return newPool(ctx, cfg, cfg.StatementTimeoutProbe)
}

func newPool(ctx context.Context, cfg *config.Config, statementTimeout time.Duration) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	if statementTimeout > 0 {
		ms := fmt.Sprintf("%d", statementTimeout.Milliseconds())
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = ms
	}

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers statements shared across the engine,
// validator, promotion engine, and reconciliation operators. Prepared
// statements eliminate parse overhead on every invocation within a batch.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		"health_check": "SELECT 1",

		// Write-authorization gate (§4.H)
		"authorize_pipeline_write":   "SELECT authorize_pipeline_write()",
		"revoke_pipeline_write":      "SELECT revoke_pipeline_write()",
		"is_write_protection_enabled": "SELECT is_write_protection_enabled()",

		// Canonical registry (§4.E)
		"registry_find_exact": `
			SELECT team_id FROM ` + config.CanonicalTeamsTable + `
			WHERE canonical_name = $1 AND birth_year IS NOT DISTINCT FROM $2
			  AND gender IS NOT DISTINCT FROM $3 AND state IS NOT DISTINCT FROM $4`,

		// Source-entity map
		"source_entity_lookup": `
			SELECT production_id FROM ` + config.SourceEntityMapTable + `
			WHERE source_platform = $1 AND source_entity_type = $2 AND source_entity_key = $3`,

		// Season resolution
		"current_season": `SELECT year FROM seasons WHERE is_current = true LIMIT 1`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
