// Package bookingtest provides in-memory doubles for the booking store and
// the lock coordinator, so the orchestrator and the HTTP surface can be
// exercised without Postgres or Redis. The store holds its mutex for the
// whole of WithinTx, which models row-level exclusivity coarsely but
// faithfully: no two transactions interleave.
package bookingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medigrid/slotbooker/internal/booking"
)

type MemoryStore struct {
	mu          sync.Mutex
	slots       map[uuid.UUID]booking.Slot
	appts       map[uuid.UUID]booking.Appointment
	events      []booking.EventLog
	nextEventID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[uuid.UUID]booking.Slot),
		appts: make(map[uuid.UUID]booking.Appointment),
	}
}

// AddSlot seeds a slot directly, bypassing validation. Version defaults to 1.
func (m *MemoryStore) AddSlot(slot booking.Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot.Version == 0 {
		slot.Version = 1
	}
	m.slots[slot.ID] = slot
}

// Events returns a copy of the recorded event log.
func (m *MemoryStore) Events() []booking.EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]booking.EventLog, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryStore) CreateSlots(_ context.Context, providerID uuid.UUID, windows []booking.Window) ([]booking.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range windows {
		for _, existing := range m.slots {
			if existing.ProviderID == providerID && w.Start.Before(existing.EndTime) && existing.StartTime.Before(w.End) {
				return nil, booking.ErrSlotOverlap
			}
		}
	}

	now := time.Now()
	created := make([]booking.Slot, 0, len(windows))
	for _, w := range windows {
		slot := booking.Slot{
			ID:         uuid.New(),
			ProviderID: providerID,
			StartTime:  w.Start,
			EndTime:    w.End,
			Occupied:   false,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		m.slots[slot.ID] = slot
		created = append(created, slot)
	}

	return created, nil
}

func (m *MemoryStore) GetSlot(_ context.Context, slotID uuid.UUID) (*booking.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSlotLocked(slotID)
}

func (m *MemoryStore) getSlotLocked(slotID uuid.UUID) (*booking.Slot, error) {
	slot, ok := m.slots[slotID]
	if !ok {
		return nil, booking.ErrSlotNotFound
	}
	return &slot, nil
}

func (m *MemoryStore) ListSlots(_ context.Context, providerID uuid.UUID, day time.Time, includeOccupied bool, now time.Time) ([]booking.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dayStart := day.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var result []booking.Slot
	for _, slot := range m.slots {
		if slot.ProviderID != providerID {
			continue
		}
		if slot.StartTime.Before(dayStart) || !slot.StartTime.Before(dayEnd) {
			continue
		}
		if !includeOccupied && (slot.Occupied || !slot.StartTime.After(now)) {
			continue
		}
		result = append(result, slot)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

func (m *MemoryStore) GetAppointment(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAppointmentLocked(id)
}

func (m *MemoryStore) getAppointmentLocked(id uuid.UUID) (*booking.Appointment, error) {
	appt, ok := m.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	return &appt, nil
}

func (m *MemoryStore) ListAppointments(_ context.Context, f booking.AppointmentFilter) ([]booking.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []booking.Appointment
	for _, appt := range m.appts {
		if f.RequesterID != nil && appt.RequesterID != *f.RequesterID {
			continue
		}
		if f.ProviderID != nil && appt.ProviderID != *f.ProviderID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, appt.Status) {
			continue
		}
		if f.From != nil && appt.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !appt.CreatedAt.Before(*f.To) {
			continue
		}
		matched = append(matched, appt)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (m *MemoryStore) FindExpiredPending(_ context.Context, now time.Time, limit int) ([]booking.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []booking.Appointment
	for _, appt := range m.appts {
		if appt.Status == booking.StatusPending && appt.ExpiresAt != nil && appt.ExpiresAt.Before(now) {
			result = append(result, appt)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ExpiresAt.Before(*result[j].ExpiresAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) InsertEvent(_ context.Context, ev booking.EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEventID++
	ev.ID = m.nextEventID
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.TxStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slotSnap := make(map[uuid.UUID]booking.Slot, len(m.slots))
	for k, v := range m.slots {
		slotSnap[k] = v
	}
	apptSnap := make(map[uuid.UUID]booking.Appointment, len(m.appts))
	for k, v := range m.appts {
		apptSnap[k] = v
	}

	if err := fn(ctx, &memTx{store: m}); err != nil {
		m.slots = slotSnap
		m.appts = apptSnap
		return err
	}
	return nil
}

type memTx struct {
	store *MemoryStore
}

func (t *memTx) SlotForUpdate(_ context.Context, slotID uuid.UUID) (*booking.Slot, error) {
	return t.store.getSlotLocked(slotID)
}

func (t *memTx) CommitSlotVersion(_ context.Context, slotID uuid.UUID, expectedVersion int64, occupied bool) (bool, error) {
	slot, ok := t.store.slots[slotID]
	if !ok || slot.Version != expectedVersion {
		return false, nil
	}

	slot.Occupied = occupied
	slot.Version++
	slot.UpdatedAt = time.Now()
	t.store.slots[slotID] = slot
	return true, nil
}

func (t *memTx) AppointmentForUpdate(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return t.store.getAppointmentLocked(id)
}

func (t *memTx) InsertAppointment(_ context.Context, appt *booking.Appointment) error {
	// Mirror of the partial unique index on slot_id.
	for _, existing := range t.store.appts {
		if existing.SlotID == appt.SlotID && existing.Status != booking.StatusCancelled {
			return booking.ErrSlotOccupied
		}
	}

	now := time.Now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.store.appts[appt.ID] = *appt
	return nil
}

func (t *memTx) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to booking.AppointmentStatus, reason *string) (*booking.Appointment, error) {
	appt, ok := t.store.appts[id]
	if !ok || appt.Status != from {
		return nil, booking.ErrAppointmentNotFound
	}

	appt.Status = to
	if reason != nil {
		appt.CancelReason = reason
	}
	appt.UpdatedAt = time.Now()
	t.store.appts[id] = appt
	return &appt, nil
}

func containsStatus(haystack []booking.AppointmentStatus, needle booking.AppointmentStatus) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
