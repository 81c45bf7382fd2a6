// Package writeauth implements the connection-scoped write-authorization
// gate described in spec §4.H. Protected tables (teams, matches) carry
// database-side triggers that reject mutation unless the current session
// called authorize_pipeline_write(), or global write protection has been
// disabled as an emergency break-glass. The grant lives in Postgres session
// state, not in this process, so it is only ever as good as the connection
// it was acquired on.
package writeauth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Authorize grants the write-protection bypass for the current connection's
// session. The grant is cleared automatically at transaction end or by an
// explicit Revoke.
func Authorize(ctx context.Context, conn *pgxpool.Conn) error {
	if _, err := conn.Exec(ctx, "authorize_pipeline_write"); err != nil {
		return fmt.Errorf("authorize pipeline write: %w", err)
	}
	return nil
}

// Revoke clears the write-protection bypass on the current connection.
func Revoke(ctx context.Context, conn *pgxpool.Conn) error {
	if _, err := conn.Exec(ctx, "revoke_pipeline_write"); err != nil {
		return fmt.Errorf("revoke pipeline write: %w", err)
	}
	return nil
}

// IsProtectionEnabled reports the global write-protection flag. When false,
// every connection may write protected tables regardless of authorization —
// intended only as an emergency break-glass.
func IsProtectionEnabled(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var enabled bool
	err := pool.QueryRow(ctx, "is_write_protection_enabled").Scan(&enabled)
	if err != nil {
		return false, fmt.Errorf("check write protection: %w", err)
	}
	return enabled, nil
}

// WithPipelineAuth reserves a single connection from the pool, authorizes
// it for protected-table writes, runs fn, and releases the connection —
// always revoking (implicitly, on release) regardless of fn's outcome.
// Because the grant is bound to one physical connection, pool-based
// concurrency is unaffected: each worker authorizes its own connection.
func WithPipelineAuth(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, conn *pgxpool.Conn) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "authorize_pipeline_write"); err != nil {
		return fmt.Errorf("authorize pipeline write: %w", err)
	}

	return fn(ctx, conn)
}

// WithPipelineTransaction adds BEGIN/COMMIT/ROLLBACK semantics on top of
// WithPipelineAuth: fn runs inside a transaction on the authorized
// connection, which is rolled back if fn returns an error.
func WithPipelineTransaction(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return WithPipelineAuth(ctx, pool, func(ctx context.Context, conn *pgxpool.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if err := fn(ctx, tx); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}
