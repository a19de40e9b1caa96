package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soochol/finauto/internal/finauto"
)

const runColumns = `id, automation_id, mode, status, started_at, completed_at, error`

// CreateRun stores a new run record.
func (d *DB) CreateRun(ctx context.Context, r *finauto.Run) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO automation_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.AutomationID, string(r.Mode), string(r.Status),
		r.StartedAt, r.CompletedAt, r.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run record by ID.
func (d *DB) GetRun(ctx context.Context, id string) (*finauto.Run, error) {
	r, err := scanRun(d.Pool.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM automation_runs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// UpdateRun writes the mutable fields of a run record.
func (d *DB) UpdateRun(ctx context.Context, r *finauto.Run) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE automation_runs SET status = $1, completed_at = $2, error = $3
		 WHERE id = $4`,
		string(r.Status), r.CompletedAt, r.Error, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return affectedOne(res, "run", r.ID)
}

// ListRunsByAutomation returns runs for one automation, newest first.
func (d *DB) ListRunsByAutomation(ctx context.Context, automationID string, limit, offset int) ([]*finauto.Run, int, error) {
	var total int
	err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM automation_runs WHERE automation_id = $1`, automationID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+runColumns+` FROM automation_runs WHERE automation_id = $1
		 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		automationID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var result []*finauto.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, r)
	}
	return result, total, rows.Err()
}

// MarkOrphanedRunsFailed closes runs left in "running" by a previous process.
func (d *DB) MarkOrphanedRunsFailed(ctx context.Context, msg string, at time.Time) (int, error) {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE automation_runs SET status = 'failed', error = $1, completed_at = $2
		 WHERE status = 'running'`, msg, at)
	if err != nil {
		return 0, fmt.Errorf("mark orphaned runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark orphaned runs: %w", err)
	}
	return int(n), nil
}

func scanRun(s scanner) (*finauto.Run, error) {
	r := &finauto.Run{}
	var mode, status string
	if err := s.Scan(&r.ID, &r.AutomationID, &mode, &status, &r.StartedAt, &r.CompletedAt, &r.Error); err != nil {
		return nil, err
	}
	r.Mode = finauto.InvocationMode(mode)
	r.Status = finauto.RunStatus(status)
	return r, nil
}
