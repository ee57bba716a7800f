package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigrid/slotbooker/internal/booking"
	"github.com/medigrid/slotbooker/internal/booking/bookingtest"
	"github.com/medigrid/slotbooker/internal/config"
	"github.com/medigrid/slotbooker/internal/lock"
)

var baseTime = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *booking.Service
	store  *bookingtest.MemoryStore
	now    time.Time
	nowMu  sync.Mutex
	locker lock.Coordinator
}

func newFixture(t *testing.T, locker lock.Coordinator) *fixture {
	t.Helper()

	if locker == nil {
		locker = lock.NewMemoryCoordinator()
	}

	store := bookingtest.NewMemoryStore()
	cfg := config.Config{
		LockTTL: 30 * time.Minute,
		HoldTTL: 30 * time.Minute,
	}

	f := &fixture{svc: booking.NewService(store, locker, cfg), store: store, now: baseTime, locker: locker}
	f.svc.SetNow(f.clock)
	return f
}

func (f *fixture) clock() time.Time {
	f.nowMu.Lock()
	defer f.nowMu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.nowMu.Lock()
	defer f.nowMu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) seedSlot(providerID uuid.UUID, startOffset time.Duration) booking.Slot {
	slot := booking.Slot{
		ID:         uuid.New(),
		ProviderID: providerID,
		StartTime:  baseTime.Add(startOffset),
		EndTime:    baseTime.Add(startOffset + 30*time.Minute),
		Version:    1,
	}
	f.store.AddSlot(slot)
	return slot
}

// requireInvariant checks occupied == true iff exactly one non-cancelled
// appointment references the slot.
func (f *fixture) requireInvariant(t *testing.T, slotID uuid.UUID) {
	t.Helper()

	slot, err := f.store.GetSlot(context.Background(), slotID)
	require.NoError(t, err)

	admin := booking.Identity{SubjectID: uuid.New(), Role: booking.RoleAdmin}
	appts, err := f.svc.ListAppointments(context.Background(), admin, booking.ListOptions{Limit: 100})
	require.NoError(t, err)

	live := 0
	for _, a := range appts {
		if a.SlotID == slotID && a.Status != booking.StatusCancelled {
			live++
		}
	}

	if slot.Occupied {
		assert.Equal(t, 1, live, "occupied slot must have exactly one live appointment")
	} else {
		assert.Equal(t, 0, live, "free slot must have no live appointment")
	}
}

func requester() booking.Identity {
	return booking.Identity{SubjectID: uuid.New(), Role: booking.RoleRequester, TenantID: uuid.New()}
}

func TestInitiateBookingSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)
	caller := requester()

	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)

	assert.Equal(t, booking.StatusPending, appt.Status)
	assert.Equal(t, slot.ID, appt.SlotID)
	assert.Equal(t, caller.SubjectID, appt.RequesterID)
	assert.Equal(t, providerID, appt.ProviderID)
	require.NotNil(t, appt.ExpiresAt)
	assert.Equal(t, baseTime.Add(30*time.Minute), *appt.ExpiresAt)

	stored, err := f.store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.Occupied)
	assert.Equal(t, int64(2), stored.Version, "version must increment on commit")

	f.requireInvariant(t, slot.ID)
}

func TestInitiateBookingRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()

	t.Run("slot not found", func(t *testing.T) {
		_, err := f.svc.InitiateBooking(ctx, requester(), uuid.New(), providerID)
		assert.ErrorIs(t, err, booking.ErrSlotNotFound)
	})

	t.Run("provider mismatch", func(t *testing.T) {
		slot := f.seedSlot(providerID, time.Hour)
		_, err := f.svc.InitiateBooking(ctx, requester(), slot.ID, uuid.New())
		assert.ErrorIs(t, err, booking.ErrProviderMismatch)
	})

	t.Run("slot in the past", func(t *testing.T) {
		slot := f.seedSlot(providerID, -time.Hour)
		_, err := f.svc.InitiateBooking(ctx, requester(), slot.ID, providerID)
		assert.ErrorIs(t, err, booking.ErrSlotInPast)
	})

	t.Run("slot occupied", func(t *testing.T) {
		slot := f.seedSlot(providerID, 2*time.Hour)
		_, err := f.svc.InitiateBooking(ctx, requester(), slot.ID, providerID)
		require.NoError(t, err)

		_, err = f.svc.InitiateBooking(ctx, requester(), slot.ID, providerID)
		assert.ErrorIs(t, err, booking.ErrSlotOccupied)
	})

	t.Run("provider cannot book", func(t *testing.T) {
		slot := f.seedSlot(providerID, 3*time.Hour)
		_, err := f.svc.InitiateBooking(ctx, booking.Identity{SubjectID: providerID, Role: booking.RoleProvider}, slot.ID, providerID)
		assert.ErrorIs(t, err, booking.ErrForbidden)
	})
}

func TestInitiateBookingConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners, conflicts int

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.InitiateBooking(ctx, requester(), slot.ID, providerID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, booking.ErrLockContended) || errors.Is(err, booking.ErrSlotOccupied):
				conflicts++
			default:
				t.Errorf("unexpected outcome: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one booking must win")
	assert.Equal(t, n-1, conflicts)
	f.requireInvariant(t, slot.ID)
}

func TestInitiateBookingLockContended(t *testing.T) {
	f := newFixture(t, &bookingtest.StubCoordinator{AcquireOK: false})
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)

	_, err := f.svc.InitiateBooking(ctx, requester(), slot.ID, providerID)
	assert.ErrorIs(t, err, booking.ErrLockContended)

	stored, err := f.store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.Occupied, "contended attempt must not touch the store")
	assert.Equal(t, int64(1), stored.Version)
}

func TestInitiateBookingFailsClosedOnCoordinatorOutage(t *testing.T) {
	f := newFixture(t, &bookingtest.StubCoordinator{AcquireErr: lock.ErrUnavailable})
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)

	_, err := f.svc.InitiateBooking(ctx, requester(), slot.ID, providerID)
	assert.ErrorIs(t, err, booking.ErrLockContended, "coordinator outage must surface as contention, not bypass the gate")

	stored, err := f.store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.Occupied)
}

// flakyStore makes the version check lose a configurable number of times.
type flakyStore struct {
	*bookingtest.MemoryStore
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.TxStore) error) error {
	return f.MemoryStore.WithinTx(ctx, func(ctx context.Context, tx booking.TxStore) error {
		return fn(ctx, &flakyTx{TxStore: tx, store: f})
	})
}

type flakyTx struct {
	booking.TxStore
	store *flakyStore
}

func (t *flakyTx) CommitSlotVersion(ctx context.Context, slotID uuid.UUID, expectedVersion int64, occupied bool) (bool, error) {
	t.store.mu.Lock()
	fail := t.store.failures > 0
	if fail {
		t.store.failures--
	}
	t.store.mu.Unlock()

	if fail {
		return false, nil
	}
	return t.TxStore.CommitSlotVersion(ctx, slotID, expectedVersion, occupied)
}

func TestInitiateBookingVersionConflictSurfacesImmediately(t *testing.T) {
	f := newFixture(t, nil)
	store := &flakyStore{MemoryStore: f.store, failures: 1}
	svc := booking.NewService(store, lock.NewMemoryCoordinator(), config.Config{LockTTL: time.Minute, HoldTTL: time.Hour})
	svc.SetNow(f.clock)

	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)

	_, err := svc.InitiateBooking(ctx, requester(), slot.ID, providerID)
	assert.ErrorIs(t, err, booking.ErrVersionConflict)

	stored, err := f.store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.Occupied, "lost race must leave no partial state")
	f.requireInvariant(t, slot.ID)
}

func TestCancelRetriesVersionConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)
	caller := requester()

	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)

	store := &flakyStore{MemoryStore: f.store, failures: 1}
	svc := booking.NewService(store, lock.NewMemoryCoordinator(), config.Config{LockTTL: time.Minute, HoldTTL: time.Hour})
	svc.SetNow(f.clock)

	cancelled, err := svc.CancelBooking(ctx, caller, appt.ID, nil)
	require.NoError(t, err, "a single version conflict must be absorbed by the retry")
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)

	stored, err := f.store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.Occupied)
}

func TestCancelSurfacesPersistentVersionConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)
	caller := requester()

	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)

	store := &flakyStore{MemoryStore: f.store, failures: 10}
	svc := booking.NewService(store, lock.NewMemoryCoordinator(), config.Config{LockTTL: time.Minute, HoldTTL: time.Hour})
	svc.SetNow(f.clock)

	_, err = svc.CancelBooking(ctx, caller, appt.ID, nil)
	assert.ErrorIs(t, err, booking.ErrVersionConflict)

	stored, err := f.store.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status, "failed cancel must leave the appointment untouched")
}

func TestRoundTripPendingConfirmedCompleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)
	caller := requester()
	provider := booking.Identity{SubjectID: providerID, Role: booking.RoleProvider}

	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)

	confirmed, err := f.svc.ConfirmBooking(ctx, caller, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, confirmed.Status)
	f.requireInvariant(t, slot.ID)

	completed, err := f.svc.CompleteBooking(ctx, provider, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, completed.Status)

	stored, err := f.store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.Occupied, "completed slots stay occupied and are never re-bookable")

	_, err = f.svc.InitiateBooking(ctx, requester(), slot.ID, providerID)
	assert.ErrorIs(t, err, booking.ErrSlotOccupied)
}

func TestConfirmRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	caller := requester()

	t.Run("not found", func(t *testing.T) {
		_, err := f.svc.ConfirmBooking(ctx, caller, uuid.New())
		assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)
	})

	t.Run("foreign appointment", func(t *testing.T) {
		slot := f.seedSlot(providerID, time.Hour)
		appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
		require.NoError(t, err)

		_, err = f.svc.ConfirmBooking(ctx, requester(), appt.ID)
		assert.ErrorIs(t, err, booking.ErrForbidden)
	})

	t.Run("already confirmed", func(t *testing.T) {
		slot := f.seedSlot(providerID, 2*time.Hour)
		appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
		require.NoError(t, err)

		_, err = f.svc.ConfirmBooking(ctx, caller, appt.ID)
		require.NoError(t, err)

		_, err = f.svc.ConfirmBooking(ctx, caller, appt.ID)
		assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	})
}

func TestConfirmAfterExpiryCancelsTheHold(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, 2*time.Hour)
	caller := requester()

	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)

	f.advance(31 * time.Minute)

	_, err = f.svc.ConfirmBooking(ctx, caller, appt.ID)
	assert.ErrorIs(t, err, booking.ErrHoldExpired)

	stored, err := f.store.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, "expired", *stored.CancelReason)

	slotAfter, err := f.store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, slotAfter.Occupied, "lapsed hold must free the slot")
	f.requireInvariant(t, slot.ID)
}

func TestCancelFreesSlotForRebooking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)
	caller := requester()

	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)

	reason := "changed my mind"
	cancelled, err := f.svc.CancelBooking(ctx, caller, appt.ID, &reason)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)
	f.requireInvariant(t, slot.ID)

	versionAfterCancel := mustSlotVersion(t, f, slot.ID)

	// Terminal states reject further transitions without side effect.
	_, err = f.svc.CancelBooking(ctx, caller, appt.ID, nil)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	assert.Equal(t, versionAfterCancel, mustSlotVersion(t, f, slot.ID))

	rebooked, err := f.svc.InitiateBooking(ctx, requester(), slot.ID, providerID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, rebooked.Status)
	f.requireInvariant(t, slot.ID)
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)
	caller := requester()

	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, requester(), appt.ID, nil)
	assert.ErrorIs(t, err, booking.ErrForbidden)

	provider := booking.Identity{SubjectID: providerID, Role: booking.RoleProvider}
	cancelled, err := f.svc.CancelBooking(ctx, provider, appt.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)
}

func TestCompleteRequiresProviderOfRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)
	caller := requester()

	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)

	// Completing a pending appointment is not a thing even for the provider.
	provider := booking.Identity{SubjectID: providerID, Role: booking.RoleProvider}
	_, err = f.svc.CompleteBooking(ctx, provider, appt.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	_, err = f.svc.ConfirmBooking(ctx, caller, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteBooking(ctx, caller, appt.ID)
	assert.ErrorIs(t, err, booking.ErrForbidden)

	otherProvider := booking.Identity{SubjectID: uuid.New(), Role: booking.RoleProvider}
	_, err = f.svc.CompleteBooking(ctx, otherProvider, appt.ID)
	assert.ErrorIs(t, err, booking.ErrForbidden)

	completed, err := f.svc.CompleteBooking(ctx, provider, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, completed.Status)
}

func TestExpirySweepFreesSlots(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()

	lapsedSlot := f.seedSlot(providerID, time.Hour)
	freshSlot := f.seedSlot(providerID, 2*time.Hour)

	lapsed, err := f.svc.InitiateBooking(ctx, requester(), lapsedSlot.ID, providerID)
	require.NoError(t, err)

	f.advance(31 * time.Minute)

	fresh, err := f.svc.InitiateBooking(ctx, requester(), freshSlot.ID, providerID)
	require.NoError(t, err)

	require.NoError(t, f.svc.ExpirePendingAppointments(ctx))

	lapsedAfter, err := f.store.GetAppointment(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, lapsedAfter.Status)

	freshAfter, err := f.store.GetAppointment(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, freshAfter.Status, "unexpired hold must survive the sweep")

	// The freed slot is bookable again.
	rebooked, err := f.svc.InitiateBooking(ctx, requester(), lapsedSlot.ID, providerID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, rebooked.Status)

	f.requireInvariant(t, lapsedSlot.ID)
	f.requireInvariant(t, freshSlot.ID)
}

func TestVersionStrictlyIncreases(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)

	versions := []int64{mustSlotVersion(t, f, slot.ID)}

	caller := requester()
	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)
	versions = append(versions, mustSlotVersion(t, f, slot.ID))

	_, err = f.svc.CancelBooking(ctx, caller, appt.ID, nil)
	require.NoError(t, err)
	versions = append(versions, mustSlotVersion(t, f, slot.ID))

	_, err = f.svc.InitiateBooking(ctx, requester(), slot.ID, providerID)
	require.NoError(t, err)
	versions = append(versions, mustSlotVersion(t, f, slot.ID))

	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1], "version must strictly increase on every commit")
	}
}

func TestCreateSlotsValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	provider := booking.Identity{SubjectID: providerID, Role: booking.RoleProvider}

	window := func(startOffset, endOffset time.Duration) booking.Window {
		return booking.Window{Start: baseTime.Add(startOffset), End: baseTime.Add(endOffset)}
	}

	t.Run("requester forbidden", func(t *testing.T) {
		_, err := f.svc.CreateSlots(ctx, requester(), providerID, []booking.Window{window(time.Hour, 90*time.Minute)})
		assert.ErrorIs(t, err, booking.ErrForbidden)
	})

	t.Run("foreign provider forbidden", func(t *testing.T) {
		other := booking.Identity{SubjectID: uuid.New(), Role: booking.RoleProvider}
		_, err := f.svc.CreateSlots(ctx, other, providerID, []booking.Window{window(time.Hour, 90*time.Minute)})
		assert.ErrorIs(t, err, booking.ErrForbidden)
	})

	t.Run("inverted window", func(t *testing.T) {
		_, err := f.svc.CreateSlots(ctx, provider, providerID, []booking.Window{window(2*time.Hour, time.Hour)})
		assert.ErrorIs(t, err, booking.ErrInvalidWindow)
	})

	t.Run("past window", func(t *testing.T) {
		_, err := f.svc.CreateSlots(ctx, provider, providerID, []booking.Window{window(-time.Hour, -30*time.Minute)})
		assert.ErrorIs(t, err, booking.ErrInvalidWindow)
	})

	t.Run("overlap within batch", func(t *testing.T) {
		_, err := f.svc.CreateSlots(ctx, provider, providerID, []booking.Window{
			window(time.Hour, 2*time.Hour),
			window(90*time.Minute, 150*time.Minute),
		})
		assert.ErrorIs(t, err, booking.ErrSlotOverlap)
	})

	t.Run("overlap with existing", func(t *testing.T) {
		_, err := f.svc.CreateSlots(ctx, provider, providerID, []booking.Window{window(time.Hour, 2*time.Hour)})
		require.NoError(t, err)

		_, err = f.svc.CreateSlots(ctx, provider, providerID, []booking.Window{window(90*time.Minute, 150*time.Minute)})
		assert.ErrorIs(t, err, booking.ErrSlotOverlap)
	})
}

// One 09:00 slot, two concurrent requesters, exactly one winner, and the slot
// disappears from the free listing.
func TestTwoRequestersOneSlotScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	provider := booking.Identity{SubjectID: providerID, Role: booking.RoleProvider}

	day := baseTime.Add(24 * time.Hour).Truncate(24 * time.Hour)
	start := day.Add(9 * time.Hour)
	slots, err := f.svc.CreateSlots(ctx, provider, providerID, []booking.Window{
		{Start: start, End: start.Add(30 * time.Minute)},
	})
	require.NoError(t, err)
	slot := slots[0]

	a, b := requester(), requester()
	results := make(chan error, 2)
	for _, id := range []booking.Identity{a, b} {
		go func(caller booking.Identity) {
			_, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
			results <- err
		}(id)
	}

	var wins, conflicts int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, booking.ErrLockContended) || errors.Is(err, booking.ErrSlotOccupied):
			conflicts++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	free, err := f.svc.ListAvailableSlots(ctx, providerID, day, false)
	require.NoError(t, err)
	assert.Empty(t, free, "booked slot must not appear in the free listing")

	all, err := f.svc.ListAvailableSlots(ctx, providerID, day, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Occupied)
}

func TestListAppointmentsScoping(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	callerA, callerB := requester(), requester()

	slotA := f.seedSlot(providerID, time.Hour)
	slotB := f.seedSlot(providerID, 2*time.Hour)

	apptA, err := f.svc.InitiateBooking(ctx, callerA, slotA.ID, providerID)
	require.NoError(t, err)
	_, err = f.svc.InitiateBooking(ctx, callerB, slotB.ID, providerID)
	require.NoError(t, err)

	mine, err := f.svc.ListAppointments(ctx, callerA, booking.ListOptions{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, apptA.ID, mine[0].ID)

	provider := booking.Identity{SubjectID: providerID, Role: booking.RoleProvider}
	schedule, err := f.svc.ListAppointments(ctx, provider, booking.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, schedule, 2)

	cancelled, err := f.svc.ListAppointments(ctx, provider, booking.ListOptions{
		Statuses: []booking.AppointmentStatus{booking.StatusCancelled},
	})
	require.NoError(t, err)
	assert.Empty(t, cancelled)
}

func TestGetAppointmentVisibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	providerID := uuid.New()
	slot := f.seedSlot(providerID, time.Hour)
	caller := requester()

	appt, err := f.svc.InitiateBooking(ctx, caller, slot.ID, providerID)
	require.NoError(t, err)

	got, err := f.svc.GetAppointment(ctx, caller, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)

	_, err = f.svc.GetAppointment(ctx, requester(), appt.ID)
	assert.ErrorIs(t, err, booking.ErrForbidden)
}

func mustSlotVersion(t *testing.T, f *fixture, slotID uuid.UUID) int64 {
	t.Helper()
	slot, err := f.store.GetSlot(context.Background(), slotID)
	require.NoError(t, err)
	return slot.Version
}
