package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/finauto/internal/finauto"
	"github.com/soochol/finauto/internal/repository"
)

var errFake = errors.New("fake db error")

// stubAutomationDB is a fake DB that records calls and returns canned data.
type stubAutomationDB struct {
	automations map[string]*finauto.Automation
	updates     []finauto.StateUpdate
	listErr     error
	updateErr   error
}

func (s *stubAutomationDB) CreateAutomation(_ context.Context, a *finauto.Automation) error {
	s.automations[a.ID] = a
	return nil
}
func (s *stubAutomationDB) GetAutomation(_ context.Context, id string) (*finauto.Automation, error) {
	a, ok := s.automations[id]
	if !ok {
		return nil, fmt.Errorf("automation %s: %w", id, sql.ErrNoRows)
	}
	return a, nil
}
func (s *stubAutomationDB) ListAutomationsByUser(_ context.Context, _ string) ([]*finauto.Automation, error) {
	return nil, s.listErr
}
func (s *stubAutomationDB) ListDueAutomations(_ context.Context, _ time.Time) ([]*finauto.Automation, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*finauto.Automation
	for _, a := range s.automations {
		out = append(out, a)
	}
	return out, nil
}
func (s *stubAutomationDB) UpdateAutomationState(_ context.Context, _ string, u finauto.StateUpdate) error {
	s.updates = append(s.updates, u)
	return s.updateErr
}
func (s *stubAutomationDB) SoftDeleteAutomation(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func TestPersistentAutomationRepo_MapsMissingRow(t *testing.T) {
	repo := repository.NewPersistentAutomationRepository(&stubAutomationDB{automations: map[string]*finauto.Automation{}})
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPersistentAutomationRepo_HidesDeleted(t *testing.T) {
	now := time.Now()
	db := &stubAutomationDB{automations: map[string]*finauto.Automation{
		"a": {ID: "a", Trigger: finauto.ManualTrigger{}, DeletedAt: &now},
	}}
	repo := repository.NewPersistentAutomationRepository(db)
	_, err := repo.Get(context.Background(), "a")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPersistentAutomationRepo_SurfacesDBErrors(t *testing.T) {
	db := &stubAutomationDB{automations: map[string]*finauto.Automation{}, listErr: errFake, updateErr: errFake}
	repo := repository.NewPersistentAutomationRepository(db)

	_, err := repo.ListDue(context.Background(), time.Now())
	assert.ErrorIs(t, err, errFake)

	err = repo.UpdateState(context.Background(), "a", finauto.StateUpdate{IsActive: true})
	assert.ErrorIs(t, err, errFake)
	require.Len(t, db.updates, 1)
	assert.True(t, db.updates[0].IsActive)
}
