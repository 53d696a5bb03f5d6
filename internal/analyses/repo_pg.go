package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// CreateDataset inserts an upload record.
func (r *PGRepo) CreateDataset(ctx context.Context, d Dataset) error {
	const query = `
INSERT INTO datasets (
	id, file_name, storage_key, size_bytes, row_count, column_count, time_column, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.ExecContext(ctx, query,
		d.ID,
		d.FileName,
		d.StorageKey,
		d.SizeBytes,
		d.RowCount,
		d.ColumnCount,
		d.TimeColumn,
		d.CreatedAt,
	)
	return err
}

// GetDataset returns an upload record by ID.
func (r *PGRepo) GetDataset(ctx context.Context, id string) (Dataset, error) {
	const query = `
SELECT id, file_name, storage_key, size_bytes, row_count, column_count, time_column, created_at
FROM datasets
WHERE id = $1
LIMIT 1`
	var d Dataset
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&d.ID,
		&d.FileName,
		&d.StorageKey,
		&d.SizeBytes,
		&d.RowCount,
		&d.ColumnCount,
		&d.TimeColumn,
		&d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, ErrNotFound
	}
	if err != nil {
		return Dataset{}, err
	}
	return d, nil
}

// CloseDataset stamps the time and reason a session ended.
func (r *PGRepo) CloseDataset(ctx context.Context, id, reason string, at time.Time) error {
	const query = `
UPDATE datasets
SET closed_at = $2, close_reason = $3
WHERE id = $1 AND closed_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, id, at, reason)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRun inserts a capability run record.
func (r *PGRepo) CreateRun(ctx context.Context, run Run) error {
	const query = `
INSERT INTO capability_runs (
	id, analysis_id, capability, params, outcome, finding_count, duration_ms, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	params, err := json.Marshal(run.Params)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		run.ID,
		run.AnalysisID,
		run.Capability,
		params,
		run.Outcome,
		run.FindingCount,
		run.DurationMs,
		run.CreatedAt,
	)
	return err
}

// ListRuns lists the runs of an analysis ordered newest-first.
func (r *PGRepo) ListRuns(ctx context.Context, analysisID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	const query = `
SELECT id, analysis_id, capability, params, outcome, finding_count, duration_ms, created_at
FROM capability_runs
WHERE analysis_id = $1
ORDER BY created_at DESC
LIMIT $2`

	rows, err := r.DB.QueryContext(ctx, query, analysisID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var run Run
		var params sql.NullString
		if err := rows.Scan(
			&run.ID,
			&run.AnalysisID,
			&run.Capability,
			&params,
			&run.Outcome,
			&run.FindingCount,
			&run.DurationMs,
			&run.CreatedAt,
		); err != nil {
			return nil, err
		}
		if params.Valid {
			// tolerate rows written by older versions
			_ = json.Unmarshal([]byte(params.String), &run.Params)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
var _ Repo = (*MemoryRepo)(nil)
