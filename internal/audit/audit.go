// Package audit implements the append-only audit log (spec §4.I) that every
// reconciliation destructive write and the promotion engine's merge path
// write to, and that the recovery operator (§4.G.5) reads back from.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/config"
)

// Action is one of the three mutation kinds the audit log records.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Entry is one audit log row.
type Entry struct {
	ID        int64
	TableName string
	RecordID  int64
	Action    Action
	OldData   json.RawMessage
	NewData   json.RawMessage
	ChangedBy string
	ChangedAt time.Time
}

// Write appends one audit row within tx — callers must already hold a
// write-authorized transaction (every destructive reconciliation operator
// does). oldData/newData may be nil for actions where one side doesn't
// apply (e.g. nil oldData on INSERT).
func Write(ctx context.Context, tx pgx.Tx, tableName string, recordID int64, action Action, oldData, newData any, changedBy string) error {
	oldJSON, err := marshalOrNull(oldData)
	if err != nil {
		return fmt.Errorf("marshal old_data: %w", err)
	}
	newJSON, err := marshalOrNull(newData)
	if err != nil {
		return fmt.Errorf("marshal new_data: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO `+config.AuditLogTable+`
			(table_name, record_id, action, old_data, new_data, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		tableName, recordID, string(action), oldJSON, newJSON, changedBy)
	if err != nil {
		return fmt.Errorf("write audit entry (%s %s #%d): %w", action, tableName, recordID, err)
	}
	return nil
}

func marshalOrNull(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// FindDeletes reads every DELETE audit entry by changedBy within
// [from, to], ordered by changed_at ascending — the feed the recovery
// operator replays (§4.G.5).
func FindDeletes(ctx context.Context, pool *pgxpool.Pool, changedBy string, from, to time.Time) ([]Entry, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, table_name, record_id, action, old_data, new_data, changed_by, changed_at
		FROM `+config.AuditLogTable+`
		WHERE action = 'DELETE' AND changed_by = $1 AND changed_at BETWEEN $2 AND $3
		ORDER BY changed_at ASC`, changedBy, from, to)
	if err != nil {
		return nil, fmt.Errorf("query audit deletes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &action, &e.OldData, &e.NewData, &e.ChangedBy, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}
