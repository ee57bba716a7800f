package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/medigrid/slotbooker/internal/booking"
)

var validate = validator.New()

func createSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentity(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "no identity context")
			return
		}

		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
			return
		}

		var req CreateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
			return
		}

		windows := make([]booking.Window, 0, len(req.Windows))
		for _, wr := range req.Windows {
			windows = append(windows, booking.Window{Start: wr.Start, End: wr.End})
		}

		slots, err := svc.CreateSlots(r.Context(), identity, providerID, windows)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponses(slots))
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
			return
		}

		day := time.Now().UTC()
		if raw := r.URL.Query().Get("date"); raw != "" {
			day, err = time.Parse("2006-01-02", raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
		}

		includeOccupied := r.URL.Query().Get("include_occupied") == "true"

		slots, err := svc.ListAvailableSlots(r.Context(), providerID, day, includeOccupied)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func initiateBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentity(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "no identity context")
			return
		}

		var req InitiateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
			return
		}

		slotID, _ := uuid.Parse(req.SlotID)
		providerID, _ := uuid.Parse(req.ProviderID)

		appt, err := svc.InitiateBooking(r.Context(), identity, slotID, providerID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

// bookingAction covers confirm/cancel/complete, which share the id-parse and
// error-mapping boilerplate.
func bookingAction(fn func(r *http.Request, identity booking.Identity, id uuid.UUID) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentity(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "no identity context")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		appt, err := fn(r, identity, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmBookingHandler(svc *booking.Service) http.HandlerFunc {
	return bookingAction(func(r *http.Request, identity booking.Identity, id uuid.UUID) (*booking.Appointment, error) {
		return svc.ConfirmBooking(r.Context(), identity, id)
	})
}

func cancelBookingHandler(svc *booking.Service) http.HandlerFunc {
	return bookingAction(func(r *http.Request, identity booking.Identity, id uuid.UUID) (*booking.Appointment, error) {
		var reason *string
		if r.Body != nil && r.ContentLength != 0 {
			var req CancelBookingRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Reason != "" {
				reason = &req.Reason
			}
		}
		return svc.CancelBooking(r.Context(), identity, id, reason)
	})
}

func completeBookingHandler(svc *booking.Service) http.HandlerFunc {
	return bookingAction(func(r *http.Request, identity booking.Identity, id uuid.UUID) (*booking.Appointment, error) {
		return svc.CompleteBooking(r.Context(), identity, id)
	})
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return bookingAction(func(r *http.Request, identity booking.Identity, id uuid.UUID) (*booking.Appointment, error) {
		return svc.GetAppointment(r.Context(), identity, id)
	})
}

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentity(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "no identity context")
			return
		}

		opts, err := parseListOptions(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		appts, err := svc.ListAppointments(r.Context(), identity, opts)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func parseListOptions(r *http.Request) (booking.ListOptions, error) {
	var opts booking.ListOptions
	q := r.URL.Query()

	if raw := q.Get("status"); raw != "" {
		opts.Statuses = []booking.AppointmentStatus{booking.AppointmentStatus(raw)}
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, err
		}
		opts.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, err
		}
		opts.To = &t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, err
		}
		opts.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, err
		}
		opts.Offset = n
	}

	return opts, nil
}
