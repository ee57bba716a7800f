package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentFilter narrows ListAppointments. Nil fields are not applied.
// The service always sets RequesterID or ProviderID from the caller identity;
// the store never returns rows outside that scope.
type AppointmentFilter struct {
	RequesterID *uuid.UUID
	ProviderID  *uuid.UUID
	Statuses    []AppointmentStatus
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// Store is the durable side of the booking subsystem. Plain methods run on
// single statements; everything that mutates slot occupancy goes through
// WithinTx so the read-modify-write happens on one transaction.
type Store interface {
	// CreateSlots inserts a batch of windows for one provider atomically.
	// Overlap with the provider's existing slots fails the whole batch with
	// ErrSlotOverlap.
	CreateSlots(ctx context.Context, providerID uuid.UUID, windows []Window) ([]Slot, error)

	GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)

	// ListSlots returns the provider's slots whose start falls on the given
	// day. With includeOccupied false it returns only free, still-bookable
	// slots (future start).
	ListSlots(ctx context.Context, providerID uuid.UUID, day time.Time, includeOccupied bool, now time.Time) ([]Slot, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)

	// FindExpiredPending returns pending appointments whose hold expired
	// before now, for the reaper. The actual transition happens per
	// appointment inside WithinTx, never from this read.
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error

	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

// TxStore is the transactional surface available inside WithinTx. A returned
// error from the WithinTx callback rolls the transaction back; no partial
// effect survives.
type TxStore interface {
	// SlotForUpdate reads the slot with row-level exclusivity for the rest of
	// the transaction.
	SlotForUpdate(ctx context.Context, slotID uuid.UUID) (*Slot, error)

	// CommitSlotVersion sets occupancy and increments the version only if the
	// stored version still equals expectedVersion. False means the race was
	// lost; nothing was written.
	CommitSlotVersion(ctx context.Context, slotID uuid.UUID, expectedVersion int64, occupied bool) (bool, error)

	AppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, appt *Appointment) error

	// UpdateAppointmentStatus transitions the appointment, conditional on the
	// current status still being from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, reason *string) (*Appointment, error)
}
