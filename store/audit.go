package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openbaas/cloudscript/internal/core"
)

// AuditLog implements core.AuditStore: an append-only record of every
// invocation. Retention is the caller's policy, applied through Purge.
type AuditLog struct {
	db *sql.DB
}

var _ core.AuditStore = (*AuditLog)(nil)

// Append writes one execution record. Assigns an ID and timestamp when the
// caller left them empty.
func (a *AuditLog) Append(ctx context.Context, rec *core.ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO execution_records (id, title_id, function_name, player_id,
			args_json, result_json, error, execution_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TitleID, rec.FunctionName, rec.PlayerID,
		rec.ArgsJSON, rec.ResultJSON, rec.Error, rec.ExecutionTimeMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending execution record: %w", err)
	}
	return nil
}

// List returns the title's most recent records, newest first.
func (a *AuditLog) List(ctx context.Context, titleID string, limit int) ([]core.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, title_id, function_name, player_id, args_json, result_json,
			error, execution_time_ms, created_at
		 FROM execution_records WHERE title_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		titleID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing execution records: %w", err)
	}
	defer rows.Close()

	var recs []core.ExecutionRecord
	for rows.Next() {
		var rec core.ExecutionRecord
		if err := rows.Scan(&rec.ID, &rec.TitleID, &rec.FunctionName, &rec.PlayerID,
			&rec.ArgsJSON, &rec.ResultJSON, &rec.Error, &rec.ExecutionTimeMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Purge deletes records created before the cutoff and reports how many went.
func (a *AuditLog) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM execution_records WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purging execution records: %w", err)
	}
	return res.RowsAffected()
}
