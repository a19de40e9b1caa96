// Package repository persists automations, their actions, run history and
// in-app notifications. Every entity has an in-memory implementation and a
// PostgreSQL-backed one behind the same interface.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// dbErr maps a missing row to ErrNotFound and wraps everything else.
func dbErr(op, kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	return fmt.Errorf("db %s %s: %w", op, kind, err)
}
