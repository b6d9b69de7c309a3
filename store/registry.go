package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openbaas/cloudscript/internal/core"
)

// ScriptRegistry implements core.Registry. Script versions are append-only;
// saving never mutates an existing version, and at most one version per
// (title, function) is published at a time.
type ScriptRegistry struct {
	db *sql.DB
}

var _ core.Registry = (*ScriptRegistry)(nil)

// Save stores a new version of the function's source and returns the version
// number it was assigned. The new version starts unpublished.
func (r *ScriptRegistry) Save(ctx context.Context, def *core.ScriptDefinition) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM scripts
		 WHERE title_id = ? AND function_name = ?`,
		def.TitleID, def.FunctionName).Scan(&version); err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scripts (title_id, function_name, version, source, published,
			timeout_seconds, memory_limit_mb, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		def.TitleID, def.FunctionName, version, def.Source,
		def.TimeoutSeconds, def.MemoryLimitMB, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("saving script: %w", err)
	}
	return version, tx.Commit()
}

// Publish marks the given version live and unpublishes any other version of
// the same function.
func (r *ScriptRegistry) Publish(ctx context.Context, titleID, functionName string, version int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE scripts SET published = 1
		 WHERE title_id = ? AND function_name = ? AND version = ?`,
		titleID, functionName, version)
	if err != nil {
		return fmt.Errorf("publishing script: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrFunctionNotFound
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE scripts SET published = 0
		 WHERE title_id = ? AND function_name = ? AND version != ?`,
		titleID, functionName, version)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Lookup resolves the published version, or the latest version when
// publication is not required (developer test calls). Misses are
// core.ErrFunctionNotFound.
func (r *ScriptRegistry) Lookup(ctx context.Context, titleID, functionName string, requirePublished bool) (*core.ScriptDefinition, error) {
	query := `SELECT version, source, published, timeout_seconds, memory_limit_mb
		FROM scripts WHERE title_id = ? AND function_name = ?`
	if requirePublished {
		query += ` AND published = 1`
	}
	query += ` ORDER BY version DESC LIMIT 1`

	def := &core.ScriptDefinition{TitleID: titleID, FunctionName: functionName}
	err := r.db.QueryRowContext(ctx, query, titleID, functionName).Scan(
		&def.Version, &def.Source, &def.Published, &def.TimeoutSeconds, &def.MemoryLimitMB)
	if err == sql.ErrNoRows {
		return nil, core.ErrFunctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up script: %w", err)
	}
	return def, nil
}
