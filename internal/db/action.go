package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soochol/finauto/internal/finauto"
)

// CreateAction stores a new action. seq is assigned by the database.
func (d *DB) CreateAction(ctx context.Context, a *finauto.Action) error {
	typ, cfg, err := finauto.EncodeActionKind(a.Kind)
	if err != nil {
		return err
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO automation_actions (id, automation_id, sort_order, action_type, config, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.AutomationID, a.SortOrder, string(typ), cfg, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// ListActionsByAutomation returns actions ordered by sort_order, then by
// insertion.
func (d *DB) ListActionsByAutomation(ctx context.Context, automationID string) ([]*finauto.Action, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, automation_id, sort_order, action_type, config, created_at
		 FROM automation_actions WHERE automation_id = $1
		 ORDER BY sort_order, seq`, automationID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

func scanActions(rows *sql.Rows) ([]*finauto.Action, error) {
	var result []*finauto.Action
	for rows.Next() {
		a := &finauto.Action{}
		var typ string
		var cfg []byte
		if err := rows.Scan(&a.ID, &a.AutomationID, &a.SortOrder, &typ, &cfg, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		kind, err := finauto.DecodeActionKind(finauto.ActionType(typ), cfg)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", a.ID, err)
		}
		a.Kind = kind
		result = append(result, a)
	}
	return result, rows.Err()
}
