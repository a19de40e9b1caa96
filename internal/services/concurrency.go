package services

import (
	"sync"

	"github.com/soochol/finauto/internal/finauto/ports"
)

var _ ports.ConcurrencyControl = (*AutomationLimiter)(nil)

// AutomationLimiter leases each automation to at most one processor in this
// process. It does not coordinate across processes.
type AutomationLimiter struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewAutomationLimiter creates an empty limiter.
func NewAutomationLimiter() *AutomationLimiter {
	return &AutomationLimiter{held: make(map[string]struct{})}
}

// TryAcquire takes the lease for automationID, returning false if another
// processor already holds it.
func (l *AutomationLimiter) TryAcquire(automationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[automationID]; ok {
		return false
	}
	l.held[automationID] = struct{}{}
	return true
}

// Release returns the lease for automationID.
func (l *AutomationLimiter) Release(automationID string) {
	l.mu.Lock()
	delete(l.held, automationID)
	l.mu.Unlock()
}

// Active returns the number of automations currently leased.
func (l *AutomationLimiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
