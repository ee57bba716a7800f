package bookingtest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StubCoordinator returns fixed answers, for driving the orchestrator through
// the contended and fail-closed branches of the lock gate.
type StubCoordinator struct {
	AcquireOK  bool
	AcquireErr error
}

func (c *StubCoordinator) TryAcquire(context.Context, uuid.UUID, string, time.Duration) (bool, error) {
	return c.AcquireOK, c.AcquireErr
}

func (c *StubCoordinator) Release(context.Context, uuid.UUID, string) (bool, error) {
	return true, nil
}

func (c *StubCoordinator) Extend(context.Context, uuid.UUID, string, time.Duration) (bool, error) {
	return c.AcquireOK, c.AcquireErr
}
