package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryCoordinator implements the Coordinator contract in-process with real
// TTL semantics. It exists so the orchestrator can be exercised without Redis;
// it provides no cross-instance exclusion.
type MemoryCoordinator struct {
	mu      sync.Mutex
	entries map[uuid.UUID]entry
	now     func() time.Time
}

func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{
		entries: make(map[uuid.UUID]entry),
		now:     time.Now,
	}
}

// SetClock overrides the time source, used by tests to expire entries
// deterministically.
func (c *MemoryCoordinator) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCoordinator) TryAcquire(_ context.Context, slotID uuid.UUID, token string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[slotID]; ok && e.expiresAt.After(c.now()) {
		return false, nil
	}
	c.entries[slotID] = entry{token: token, expiresAt: c.now().Add(ttl)}
	return true, nil
}

func (c *MemoryCoordinator) Release(_ context.Context, slotID uuid.UUID, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[slotID]
	if !ok || e.token != token || !e.expiresAt.After(c.now()) {
		return false, nil
	}
	delete(c.entries, slotID)
	return true, nil
}

func (c *MemoryCoordinator) Extend(_ context.Context, slotID uuid.UUID, token string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[slotID]
	if !ok || e.token != token || !e.expiresAt.After(c.now()) {
		return false, nil
	}
	e.expiresAt = c.now().Add(ttl)
	c.entries[slotID] = e
	return true, nil
}
