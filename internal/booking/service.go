package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medigrid/slotbooker/internal/config"
	"github.com/medigrid/slotbooker/internal/lock"
)

const (
	EventBookingInitiated = "BOOKING_INITIATED"
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventBookingCompleted = "BOOKING_COMPLETED"
	EventBookingExpired   = "BOOKING_EXPIRED"
)

const (
	// Extra attempts for occupancy-clearing commits that lose the version
	// check to an unrelated touch of the slot row.
	versionRetries = 2

	expiryBatchSize = 100

	reasonExpired = "expired"
)

// Service is the booking orchestrator: it sequences the lock gate and the
// version-checked transaction, owns the appointment state machine, and is the
// only writer of slot and appointment rows.
type Service struct {
	store  Store
	locker lock.Coordinator
	cfg    config.Config
	now    func() time.Time
}

func NewService(store Store, locker lock.Coordinator, cfg config.Config) *Service {
	return &Service{
		store:  store,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
	}
}

// CreateSlots validates and inserts a batch of bookable windows for one
// provider. Providers may only create their own slots.
func (s *Service) CreateSlots(ctx context.Context, caller Identity, providerID uuid.UUID, windows []Window) ([]Slot, error) {
	switch caller.Role {
	case RoleAdmin:
	case RoleProvider:
		if caller.SubjectID != providerID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidWindow)
	}

	now := s.now()
	sorted := make([]Window, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	for i, w := range sorted {
		if !w.Start.Before(w.End) {
			return nil, fmt.Errorf("%w: start must precede end", ErrInvalidWindow)
		}
		if !w.Start.After(now) {
			return nil, fmt.Errorf("%w: window is in the past", ErrInvalidWindow)
		}
		if i > 0 && sorted[i-1].End.After(w.Start) {
			return nil, ErrSlotOverlap
		}
	}

	return s.store.CreateSlots(ctx, providerID, sorted)
}

// ListAvailableSlots returns a provider's slots for one day. The view is a
// snapshot: a slot shown free may still fail at initiate time, which callers
// must treat as a normal retryable outcome.
func (s *Service) ListAvailableSlots(ctx context.Context, providerID uuid.UUID, day time.Time, includeOccupied bool) ([]Slot, error) {
	return s.store.ListSlots(ctx, providerID, day, includeOccupied, s.now())
}

// InitiateBooking reserves a free slot for the caller, producing a PENDING
// appointment that holds the slot until confirmed, cancelled, or expired.
//
// Two independent gates run in sequence. The slot lock bounds how many
// instances race the same slot into a transaction; the version-checked commit
// inside the transaction is the actual double-booking guarantee. The lock can
// expire mid-flight or the coordinator can be down during another writer's
// attempt, so the commit never trusts it.
func (s *Service) InitiateBooking(ctx context.Context, caller Identity, slotID, providerID uuid.UUID) (*Appointment, error) {
	if caller.Role == RoleProvider {
		return nil, ErrForbidden
	}
	requesterID := caller.SubjectID

	token := lock.NewToken()

	acquired, err := s.locker.TryAcquire(ctx, slotID, token, s.cfg.LockTTL)
	if err != nil {
		// Fail closed: an unreachable coordinator means "not acquired",
		// never "proceed without the gate".
		log.Printf("slot lock acquire failed, treating as contended: slot=%s err=%v", slotID, err)
		return nil, ErrLockContended
	}
	if !acquired {
		return nil, ErrLockContended
	}

	defer func() {
		// Best effort: the TTL bounds the entry's lifetime if this fails.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := s.locker.Release(releaseCtx, slotID, token); err != nil {
			log.Printf("slot lock release failed: slot=%s err=%v", slotID, err)
		}
	}()

	var created *Appointment

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx TxStore) error {
		slot, err := tx.SlotForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.ProviderID != providerID {
			return ErrProviderMismatch
		}
		if slot.Occupied {
			return ErrSlotOccupied
		}

		now := s.now()
		if !slot.StartTime.After(now) {
			return ErrSlotInPast
		}

		expiresAt := now.Add(s.cfg.HoldTTL)
		appt := &Appointment{
			ID:          uuid.New(),
			SlotID:      slotID,
			ProviderID:  slot.ProviderID,
			RequesterID: requesterID,
			Status:      StatusPending,
			ExpiresAt:   &expiresAt,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}

		ok, err := tx.CommitSlotVersion(ctx, slotID, slot.Version, true)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent writer won despite the lock gate. Roll back;
			// nothing of this attempt survives.
			return ErrVersionConflict
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventBookingInitiated, map[string]any{
		"slot_id":      slotID.String(),
		"requester_id": requesterID.String(),
		"expires_at":   created.ExpiresAt,
	})

	return created, nil
}

// ConfirmBooking moves a PENDING appointment to CONFIRMED, typically on a
// payment webhook. A hold found already expired is cancelled on the spot
// (through the versioned commit path) and the confirm rejected.
func (s *Service) ConfirmBooking(ctx context.Context, caller Identity, id uuid.UUID) (*Appointment, error) {
	var updated *Appointment
	lapsed := false

	err := s.withVersionRetry(ctx, func(ctx context.Context, tx TxStore) error {
		lapsed = false

		appt, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if caller.Role != RoleAdmin && appt.RequesterID != caller.SubjectID {
			return ErrForbidden
		}

		if appt.Status == StatusPending && s.holdLapsed(appt) {
			if err := s.releaseSlotTx(ctx, tx, appt, reasonExpired); err != nil {
				return err
			}
			// Commit the expiry even though the confirm is rejected.
			lapsed = true
			return nil
		}

		if !CanTransition(appt.Status, StatusConfirmed) {
			return ErrInvalidTransition
		}

		updated, err = tx.UpdateAppointmentStatus(ctx, id, StatusPending, StatusConfirmed, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	if lapsed {
		s.logEvent(ctx, id, EventBookingExpired, map[string]any{"reason": "confirm_after_expiry"})
		return nil, ErrHoldExpired
	}

	s.logEvent(ctx, updated.ID, EventBookingConfirmed, map[string]any{})
	return updated, nil
}

// CancelBooking cancels a PENDING or CONFIRMED appointment and frees its
// slot. Requester of record, provider of record, and admins may cancel.
func (s *Service) CancelBooking(ctx context.Context, caller Identity, id uuid.UUID, reason *string) (*Appointment, error) {
	var updated *Appointment

	err := s.withVersionRetry(ctx, func(ctx context.Context, tx TxStore) error {
		appt, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if caller.Role != RoleAdmin && appt.RequesterID != caller.SubjectID && appt.ProviderID != caller.SubjectID {
			return ErrForbidden
		}

		if !CanTransition(appt.Status, StatusCancelled) {
			return ErrInvalidTransition
		}

		updated, err = tx.UpdateAppointmentStatus(ctx, id, appt.Status, StatusCancelled, reason)
		if err != nil {
			return err
		}

		return s.clearOccupancyTx(ctx, tx, appt.SlotID)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventBookingCancelled, map[string]any{
		"reason": stringOrEmpty(reason),
	})
	return updated, nil
}

// CompleteBooking marks a CONFIRMED appointment as carried out. Only the
// provider of record (or an admin) may complete; the slot stays occupied so a
// completed window is never re-bookable.
func (s *Service) CompleteBooking(ctx context.Context, caller Identity, id uuid.UUID) (*Appointment, error) {
	var updated *Appointment

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx TxStore) error {
		appt, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if caller.Role != RoleAdmin && appt.ProviderID != caller.SubjectID {
			return ErrForbidden
		}

		if !CanTransition(appt.Status, StatusCompleted) {
			return ErrInvalidTransition
		}

		updated, err = tx.UpdateAppointmentStatus(ctx, id, StatusConfirmed, StatusCompleted, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventBookingCompleted, map[string]any{})
	return updated, nil
}

// GetAppointment returns one appointment, visible only to its requester, its
// provider, or an admin.
func (s *Service) GetAppointment(ctx context.Context, caller Identity, id uuid.UUID) (*Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != RoleAdmin && appt.RequesterID != caller.SubjectID && appt.ProviderID != caller.SubjectID {
		return nil, ErrForbidden
	}
	return appt, nil
}

// ListOptions narrows ListAppointments; zero values mean "no filter".
type ListOptions struct {
	Statuses []AppointmentStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// ListAppointments pages the caller's own appointments: requesters see what
// they booked, providers see their schedule, admins see everything.
func (s *Service) ListAppointments(ctx context.Context, caller Identity, opts ListOptions) ([]Appointment, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	f := AppointmentFilter{
		Statuses: opts.Statuses,
		From:     opts.From,
		To:       opts.To,
		Limit:    limit,
		Offset:   offset,
	}

	subject := caller.SubjectID
	switch caller.Role {
	case RoleRequester:
		f.RequesterID = &subject
	case RoleProvider:
		f.ProviderID = &subject
	case RoleAdmin:
	default:
		return nil, ErrForbidden
	}

	return s.store.ListAppointments(ctx, f)
}

// ExpirePendingAppointments sweeps PENDING appointments whose hold lapsed and
// cancels them, freeing their slots. Called periodically by the expiry
// worker; every transition goes through the version-checked commit path.
func (s *Service) ExpirePendingAppointments(ctx context.Context) error {
	now := s.now()
	candidates, err := s.store.FindExpiredPending(ctx, now, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("find expired pending appointments: %w", err)
	}

	for _, appt := range candidates {
		if err := s.expireOne(ctx, appt.ID); err != nil {
			log.Printf("failed to expire appointment %s: %v", appt.ID, err)
		}
	}

	return nil
}

func (s *Service) expireOne(ctx context.Context, id uuid.UUID) error {
	swept := false

	err := s.withVersionRetry(ctx, func(ctx context.Context, tx TxStore) error {
		swept = false

		appt, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return nil
			}
			return err
		}

		// Re-check under the row lock: the candidate scan is a stale read
		// and the appointment may have been confirmed or cancelled since.
		if appt.Status != StatusPending || !s.holdLapsed(appt) {
			return nil
		}

		if err := s.releaseSlotTx(ctx, tx, appt, reasonExpired); err != nil {
			return err
		}
		swept = true
		return nil
	})
	if err != nil {
		return err
	}

	if swept {
		s.logEvent(ctx, id, EventBookingExpired, map[string]any{"reason": "worker"})
	}
	return nil
}

// releaseSlotTx cancels a pending appointment and clears its slot's
// occupancy inside the current transaction.
func (s *Service) releaseSlotTx(ctx context.Context, tx TxStore, appt *Appointment, reason string) error {
	if _, err := tx.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusCancelled, &reason); err != nil {
		return err
	}
	return s.clearOccupancyTx(ctx, tx, appt.SlotID)
}

func (s *Service) clearOccupancyTx(ctx context.Context, tx TxStore, slotID uuid.UUID) error {
	slot, err := tx.SlotForUpdate(ctx, slotID)
	if err != nil {
		return err
	}

	ok, err := tx.CommitSlotVersion(ctx, slotID, slot.Version, false)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVersionConflict
	}
	return nil
}

// withVersionRetry re-runs the transaction a bounded number of times when the
// version check loses to an unrelated concurrent touch of the slot row.
func (s *Service) withVersionRetry(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	var err error
	for attempt := 0; attempt <= versionRetries; attempt++ {
		err = s.store.WithinTx(ctx, fn)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return err
}

func (s *Service) holdLapsed(appt *Appointment) bool {
	return appt.ExpiresAt != nil && appt.ExpiresAt.Before(s.now())
}

// logEvent appends to the audit trail outside the booking transaction; a
// failed insert is logged, never surfaced.
func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.store.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
