package reconcile

import (
	"sync"

	"github.com/google/uuid"
)

// tenantLocks serializes status writes per tenant. Gateway events, sweeps
// and tenant requests all funnel through the same lock, so two concurrent
// triggers can never interleave writes for one tenant.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Acquire locks the tenant's mutex and returns its unlock func. Locks are
// retained for the process lifetime; the map is bounded by tenant count.
func (l *tenantLocks) Acquire(tenantID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[tenantID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
