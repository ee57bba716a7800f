package booking

import "errors"

// Caller-visible outcomes. Conflict-class errors are transient (the caller
// may retry, possibly against a different slot); not-found and forbidden are
// terminal for the request.
var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrProviderMismatch    = errors.New("slot does not belong to the given provider")

	ErrSlotOccupied  = errors.New("slot already has a live appointment")
	ErrSlotInPast    = errors.New("slot start time has already passed")
	ErrSlotOverlap   = errors.New("slot window overlaps an existing slot")
	ErrInvalidWindow = errors.New("slot window is invalid")

	ErrInvalidTransition = errors.New("invalid appointment status transition")
	ErrHoldExpired       = errors.New("pending hold has expired")

	ErrLockContended   = errors.New("slot is currently being booked, please retry")
	ErrVersionConflict = errors.New("slot was modified concurrently, please retry")

	ErrForbidden = errors.New("caller may not act on this resource")
)
