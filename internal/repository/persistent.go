package repository

import (
	"context"
	"time"

	"github.com/soochol/finauto/internal/finauto"
)

// AutomationDB defines the DB-layer methods needed by the persistent
// automation repo. *db.DB satisfies this interface.
type AutomationDB interface {
	CreateAutomation(ctx context.Context, a *finauto.Automation) error
	GetAutomation(ctx context.Context, id string) (*finauto.Automation, error)
	ListAutomationsByUser(ctx context.Context, userID string) ([]*finauto.Automation, error)
	ListDueAutomations(ctx context.Context, now time.Time) ([]*finauto.Automation, error)
	UpdateAutomationState(ctx context.Context, id string, u finauto.StateUpdate) error
	SoftDeleteAutomation(ctx context.Context, id string, at time.Time) error
}

// ActionDB defines the DB-layer methods needed by the persistent action repo.
type ActionDB interface {
	CreateAction(ctx context.Context, a *finauto.Action) error
	ListActionsByAutomation(ctx context.Context, automationID string) ([]*finauto.Action, error)
}

// RunDB defines the DB-layer methods needed by the persistent run repo.
type RunDB interface {
	CreateRun(ctx context.Context, run *finauto.Run) error
	GetRun(ctx context.Context, id string) (*finauto.Run, error)
	UpdateRun(ctx context.Context, run *finauto.Run) error
	ListRunsByAutomation(ctx context.Context, automationID string, limit, offset int) ([]*finauto.Run, int, error)
	MarkOrphanedRunsFailed(ctx context.Context, msg string, at time.Time) (int, error)
}

// NotificationDB defines the DB-layer methods needed by the persistent
// notification repo.
type NotificationDB interface {
	CreateNotification(ctx context.Context, n *finauto.Notification) error
	ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]*finauto.Notification, error)
}

// PersistentAutomationRepository stores automations in PostgreSQL. The
// database is authoritative: due selection and state writes must reach it,
// so errors are returned rather than masked by an in-memory fallback.
type PersistentAutomationRepository struct {
	db AutomationDB
}

func NewPersistentAutomationRepository(db AutomationDB) *PersistentAutomationRepository {
	return &PersistentAutomationRepository{db: db}
}

func (r *PersistentAutomationRepository) Create(ctx context.Context, a *finauto.Automation) error {
	if err := r.db.CreateAutomation(ctx, a); err != nil {
		return dbErr("create", "automation", a.ID, err)
	}
	return nil
}

func (r *PersistentAutomationRepository) Get(ctx context.Context, id string) (*finauto.Automation, error) {
	a, err := r.db.GetAutomation(ctx, id)
	if err != nil {
		return nil, dbErr("get", "automation", id, err)
	}
	if a.Deleted() {
		return nil, notFound("automation", id)
	}
	return a, nil
}

func (r *PersistentAutomationRepository) ListByUser(ctx context.Context, userID string) ([]*finauto.Automation, error) {
	out, err := r.db.ListAutomationsByUser(ctx, userID)
	if err != nil {
		return nil, dbErr("list", "automations", userID, err)
	}
	return out, nil
}

func (r *PersistentAutomationRepository) ListDue(ctx context.Context, now time.Time) ([]*finauto.Automation, error) {
	out, err := r.db.ListDueAutomations(ctx, now)
	if err != nil {
		return nil, dbErr("list due", "automations", "", err)
	}
	return out, nil
}

func (r *PersistentAutomationRepository) UpdateState(ctx context.Context, id string, u finauto.StateUpdate) error {
	if err := r.db.UpdateAutomationState(ctx, id, u); err != nil {
		return dbErr("update state", "automation", id, err)
	}
	return nil
}

func (r *PersistentAutomationRepository) Delete(ctx context.Context, id string, at time.Time) error {
	if err := r.db.SoftDeleteAutomation(ctx, id, at); err != nil {
		return dbErr("delete", "automation", id, err)
	}
	return nil
}

// PersistentActionRepository stores actions in PostgreSQL.
type PersistentActionRepository struct {
	db ActionDB
}

func NewPersistentActionRepository(db ActionDB) *PersistentActionRepository {
	return &PersistentActionRepository{db: db}
}

func (r *PersistentActionRepository) Create(ctx context.Context, a *finauto.Action) error {
	if err := r.db.CreateAction(ctx, a); err != nil {
		return dbErr("create", "action", a.ID, err)
	}
	return nil
}

func (r *PersistentActionRepository) ListByAutomation(ctx context.Context, automationID string) ([]*finauto.Action, error) {
	out, err := r.db.ListActionsByAutomation(ctx, automationID)
	if err != nil {
		return nil, dbErr("list", "actions", automationID, err)
	}
	return out, nil
}

// PersistentRunRepository stores run records in PostgreSQL.
type PersistentRunRepository struct {
	db RunDB
}

func NewPersistentRunRepository(db RunDB) *PersistentRunRepository {
	return &PersistentRunRepository{db: db}
}

func (r *PersistentRunRepository) Create(ctx context.Context, run *finauto.Run) error {
	if err := r.db.CreateRun(ctx, run); err != nil {
		return dbErr("create", "run", run.ID, err)
	}
	return nil
}

func (r *PersistentRunRepository) Get(ctx context.Context, id string) (*finauto.Run, error) {
	run, err := r.db.GetRun(ctx, id)
	if err != nil {
		return nil, dbErr("get", "run", id, err)
	}
	return run, nil
}

func (r *PersistentRunRepository) Update(ctx context.Context, run *finauto.Run) error {
	if err := r.db.UpdateRun(ctx, run); err != nil {
		return dbErr("update", "run", run.ID, err)
	}
	return nil
}

func (r *PersistentRunRepository) ListByAutomation(ctx context.Context, automationID string, limit, offset int) ([]*finauto.Run, int, error) {
	runs, total, err := r.db.ListRunsByAutomation(ctx, automationID, limit, offset)
	if err != nil {
		return nil, 0, dbErr("list", "runs", automationID, err)
	}
	return runs, total, nil
}

func (r *PersistentRunRepository) MarkOrphanedRunsFailed(ctx context.Context, msg string, at time.Time) (int, error) {
	n, err := r.db.MarkOrphanedRunsFailed(ctx, msg, at)
	if err != nil {
		return 0, dbErr("mark orphaned", "runs", "", err)
	}
	return n, nil
}

// PersistentNotificationRepository stores notifications in PostgreSQL.
type PersistentNotificationRepository struct {
	db NotificationDB
}

func NewPersistentNotificationRepository(db NotificationDB) *PersistentNotificationRepository {
	return &PersistentNotificationRepository{db: db}
}

func (r *PersistentNotificationRepository) Create(ctx context.Context, n *finauto.Notification) error {
	if err := r.db.CreateNotification(ctx, n); err != nil {
		return dbErr("create", "notification", n.ID, err)
	}
	return nil
}

func (r *PersistentNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*finauto.Notification, error) {
	out, err := r.db.ListNotificationsByUser(ctx, userID, limit)
	if err != nil {
		return nil, dbErr("list", "notifications", userID, err)
	}
	return out, nil
}
