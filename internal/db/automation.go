package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soochol/finauto/internal/finauto"
)

const automationColumns = `id, user_id, name, description, is_active, trigger_type, trigger_config, last_run_at, next_run_at, created_at, updated_at, deleted_at`

// CreateAutomation stores a new automation. Schedule state is merged into
// trigger_config.
func (d *DB) CreateAutomation(ctx context.Context, a *finauto.Automation) error {
	typ, cfg, err := finauto.EncodeTrigger(a.Trigger)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = []byte("{}")
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO automations (`+automationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.UserID, a.Name, a.Description, a.IsActive,
		string(typ), cfg,
		a.LastRunAt, a.NextRunAt, a.CreatedAt, a.UpdatedAt, a.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert automation: %w", err)
	}
	return nil
}

// GetAutomation retrieves an automation by ID, including soft-deleted ones.
func (d *DB) GetAutomation(ctx context.Context, id string) (*finauto.Automation, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+automationColumns+` FROM automations WHERE id = $1`, id)
	a, err := scanAutomation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("automation %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("get automation: %w", err)
	}
	return a, nil
}

// ListAutomationsByUser returns the user's live automations, oldest first.
func (d *DB) ListAutomationsByUser(ctx context.Context, userID string) ([]*finauto.Automation, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+automationColumns+` FROM automations
		 WHERE user_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()
	return scanAutomations(rows)
}

// ListDueAutomations returns active, live automations whose next_run_at is
// at or before now.
func (d *DB) ListDueAutomations(ctx context.Context, now time.Time) ([]*finauto.Automation, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+automationColumns+` FROM automations
		 WHERE is_active AND deleted_at IS NULL AND next_run_at IS NOT NULL AND next_run_at <= $1
		 ORDER BY next_run_at, id`, now)
	if err != nil {
		return nil, fmt.Errorf("list due automations: %w", err)
	}
	defer rows.Close()
	return scanAutomations(rows)
}

// UpdateAutomationState writes the engine-owned fields in one statement.
// runs_completed is merged into trigger_config so the user-authored keys
// are left as they are.
func (d *DB) UpdateAutomationState(ctx context.Context, id string, u finauto.StateUpdate) error {
	var runs *int
	if u.Schedule != nil {
		n := u.Schedule.RunsCompleted
		runs = &n
	}

	res, err := d.Pool.ExecContext(ctx,
		`UPDATE automations SET
		    is_active = $2,
		    next_run_at = $3,
		    last_run_at = COALESCE($4, last_run_at),
		    trigger_config = CASE WHEN $5::INTEGER IS NULL THEN trigger_config
		                          ELSE trigger_config || jsonb_build_object('runs_completed', $5::INTEGER) END,
		    updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, u.IsActive, u.NextRunAt, u.LastRunAt, runs,
	)
	if err != nil {
		return fmt.Errorf("update automation state: %w", err)
	}
	return affectedOne(res, "automation", id)
}

// SoftDeleteAutomation marks an automation deleted and inactive.
func (d *DB) SoftDeleteAutomation(ctx context.Context, id string, at time.Time) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE automations SET deleted_at = $2, is_active = FALSE, updated_at = $2
		 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("delete automation: %w", err)
	}
	return affectedOne(res, "automation", id)
}

func scanAutomation(s scanner) (*finauto.Automation, error) {
	a := &finauto.Automation{}
	var typ string
	var cfg []byte

	if err := s.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.IsActive,
		&typ, &cfg,
		&a.LastRunAt, &a.NextRunAt, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	); err != nil {
		return nil, err
	}

	trig, err := finauto.DecodeTrigger(finauto.TriggerType(typ), cfg)
	if err != nil {
		return nil, fmt.Errorf("automation %s: %w", a.ID, err)
	}
	a.Trigger = trig
	return a, nil
}

func scanAutomations(rows *sql.Rows) ([]*finauto.Automation, error) {
	var result []*finauto.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
