// Package lock provides the per-slot mutual-exclusion gate shared by all
// service instances. The gate is advisory: it bounds how many instances race
// the same slot through the booking transaction, it is never the source of
// truth for slot state. Correctness comes from the version-checked commit in
// the store.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable means the coordinator could not be reached. Callers must
// treat it as "not acquired" (fail closed), never as permission to proceed.
var ErrUnavailable = errors.New("lock coordinator unavailable")

// Coordinator is a TTL-bounded set-if-absent lock keyed by slot id.
//
// Release and Extend are conditional on the holder token: a caller whose own
// lock already expired must not be able to delete or prolong a newer holder's
// entry. Both report false when the caller is not the current holder.
type Coordinator interface {
	TryAcquire(ctx context.Context, slotID uuid.UUID, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, slotID uuid.UUID, token string) (bool, error)
	Extend(ctx context.Context, slotID uuid.UUID, token string, ttl time.Duration) (bool, error)
}

// NewToken mints a holder token unique to one booking attempt.
func NewToken() string {
	return uuid.NewString()
}
