package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Slot is a bookable time window for one provider. Occupied and Version are
// only ever mutated through the version-checked commit; Version strictly
// increases with every committed mutation.
type Slot struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Occupied   bool
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Appointment references exactly one slot. At most one appointment in a
// non-cancelled state may reference a given slot; the partial unique index in
// the schema backs this.
type Appointment struct {
	ID           uuid.UUID
	SlotID       uuid.UUID
	ProviderID   uuid.UUID
	RequesterID  uuid.UUID
	Status       AppointmentStatus
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    *time.Time
}

// Window is a requested slot interval, half-open [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
	RoleAdmin     Role = "admin"
)

// Identity is the validated identity context attached to every request by the
// upstream gateway. This subsystem trusts it and performs no authentication.
type Identity struct {
	SubjectID uuid.UUID
	Role      Role
	TenantID  uuid.UUID
}
