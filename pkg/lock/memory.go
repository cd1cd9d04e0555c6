package lock

import (
	"context"
	"sync"
	"time"
)

type memoryLease struct {
	holderID  string
	expiresAt time.Time
}

// MemoryManager implements Manager in-process. It provides the same
// at-most-one semantics for tests and single-node deployments but offers
// no cross-process exclusion.
type MemoryManager struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		leases: make(map[string]memoryLease),
		now:    time.Now,
	}
}

// NewMemoryManagerWithClock injects a clock for expiry tests.
func NewMemoryManagerWithClock(now func() time.Time) *MemoryManager {
	return &MemoryManager{
		leases: make(map[string]memoryLease),
		now:    now,
	}
}

func (m *MemoryManager) Acquire(_ context.Context, key, holderID string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[key]
	if ok && existing.expiresAt.After(m.now()) && existing.holderID != holderID {
		return nil, ErrLockHeld
	}

	m.leases[key] = memoryLease{holderID: holderID, expiresAt: m.now().Add(ttl)}

	return &Lease{Key: key, HolderID: holderID, TTL: ttl}, nil
}

func (m *MemoryManager) Renew(_ context.Context, lease *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[lease.Key]
	if !ok || existing.holderID != lease.HolderID || !existing.expiresAt.After(m.now()) {
		return ErrLeaseLost
	}

	existing.expiresAt = m.now().Add(lease.TTL)
	m.leases[lease.Key] = existing

	return nil
}

func (m *MemoryManager) Release(_ context.Context, lease *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[lease.Key]
	if ok && existing.holderID == lease.HolderID {
		delete(m.leases, lease.Key)
	}

	return nil
}
