package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medigrid/slotbooker/internal/booking"
)

type WindowRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

type CreateSlotsRequest struct {
	Windows []WindowRequest `json:"windows" validate:"required,min=1,max=200,dive"`
}

type InitiateBookingRequest struct {
	SlotID     string `json:"slot_id" validate:"required,uuid"`
	ProviderID string `json:"provider_id" validate:"required,uuid"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type SlotResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Occupied   bool      `json:"occupied"`
	Version    int64     `json:"version"`
}

type AppointmentResponse struct {
	ID           uuid.UUID  `json:"id"`
	SlotID       uuid.UUID  `json:"slot_id"`
	ProviderID   uuid.UUID  `json:"provider_id"`
	RequesterID  uuid.UUID  `json:"requester_id"`
	Status       string     `json:"status"`
	CancelReason *string    `json:"cancel_reason,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s booking.Slot) SlotResponse {
	return SlotResponse{
		ID:         s.ID,
		ProviderID: s.ProviderID,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		Occupied:   s.Occupied,
		Version:    s.Version,
	}
}

func toSlotResponses(slots []booking.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		SlotID:       a.SlotID,
		ProviderID:   a.ProviderID,
		RequesterID:  a.RequesterID,
		Status:       string(a.Status),
		CancelReason: a.CancelReason,
		ExpiresAt:    a.ExpiresAt,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}
