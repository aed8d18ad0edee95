package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/immucare/vaccine-booking/internal/booking"
	"github.com/immucare/vaccine-booking/internal/inventory"
	"github.com/immucare/vaccine-booking/internal/slot"
)

// requesterHeader carries the already-authenticated caller identity resolved
// by the outer gateway. Identity/session management is not this service's job.
const requesterHeader = "X-Requester-ID"

func requesterID(r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(requesterHeader)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func bookHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester, ok := requesterID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_requester", "X-Requester-ID header with a valid UUID is required")
			return
		}

		var req BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		vaccineID, err := uuid.Parse(req.VaccineID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_vaccine_id", "vaccine_id must be a valid UUID")
			return
		}
		centerID, err := uuid.Parse(req.CenterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_center_id", "center_id must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		subject := booking.SelfSubject(requester)
		if req.DependentID != "" {
			depID, err := uuid.Parse(req.DependentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_dependent_id", "dependent_id must be a valid UUID")
				return
			}
			subject = booking.DependentSubject(requester, depID)
		}

		appt, warning, err := svc.Book(r.Context(), booking.BookRequest{
			Subject:       subject,
			VaccineID:     vaccineID,
			CenterID:      centerID,
			SlotID:        slotID,
			PaymentMethod: req.PaymentMethod,
			Notes:         req.Notes,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt, warning))
	}
}

func consultationHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConsultationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var subject booking.Subject
		if requester, ok := requesterID(r); ok {
			subject = booking.SelfSubject(requester)
		} else {
			subject = booking.GuestSubject(booking.GuestProfile{
				FullName: req.GuestName,
				Phone:    req.Phone,
			})
		}

		var vaccineID *uuid.UUID
		if req.VaccineID != "" {
			id, err := uuid.Parse(req.VaccineID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_vaccine_id", "vaccine_id must be a valid UUID")
				return
			}
			vaccineID = &id
		}

		appt, err := svc.RequestConsultation(r.Context(), booking.ConsultationRequest{
			Subject:   subject,
			VaccineID: vaccineID,
			Phone:     req.Phone,
			Reason:    req.Reason,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt, ""))
	}
}

func cancelHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester, ok := requesterID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_requester", "X-Requester-ID header with a valid UUID is required")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, fee, err := svc.Cancel(r.Context(), id, requester)
		if err != nil {
			handleCancelError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{
			Appointment: appointmentResponse(appt, ""),
			FeeCents:    fee,
		})
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt, ""))
	}
}

func listSlotsHandler(slots slot.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		centerID, err := uuid.Parse(chi.URLParam(r, "centerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_center_id", "centerID must be a valid UUID")
			return
		}

		from, to, err := parseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
			return
		}

		result, err := slots.ListAvailable(r.Context(), centerID, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]SlotResponse, 0, len(result))
		for _, s := range result {
			resp = append(resp, SlotResponse{
				ID:              s.ID,
				CenterID:        s.CenterID,
				Date:            s.Date.Format("2006-01-02"),
				StartsAt:        s.StartsAt,
				EndsAt:          s.EndsAt,
				MaxCapacity:     s.MaxCapacity,
				CurrentBookings: s.CurrentBookings,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listStockHandler(ledger inventory.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		centerID, err := uuid.Parse(chi.URLParam(r, "centerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_center_id", "centerID must be a valid UUID")
			return
		}

		result, err := ledger.ListStockByCenter(r.Context(), centerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]StockResponse, 0, len(result))
		for _, cs := range result {
			resp = append(resp, StockResponse{
				CenterID:      cs.CenterID,
				VaccineID:     cs.VaccineID,
				StockQuantity: cs.StockQuantity,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now()
	from := now
	to := now.AddDate(0, 0, 14)

	var err error
	if fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
	}
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not precede from")
	}
	return from, to, nil
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrVaccineNotFound):
		writeError(w, http.StatusNotFound, "vaccine_not_found", err.Error())
	case errors.Is(err, booking.ErrCenterNotFound):
		writeError(w, http.StatusNotFound, "center_not_found", err.Error())
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, inventory.ErrOutOfStock):
		writeError(w, http.StatusConflict, "out_of_stock", err.Error())
	case errors.Is(err, inventory.ErrNoStockAvailable):
		writeError(w, http.StatusConflict, "no_stock_available", err.Error())
	case errors.Is(err, booking.ErrDuplicateVaccineInSlot):
		writeError(w, http.StatusBadRequest, "duplicate_vaccine_in_slot", err.Error())
	case errors.Is(err, booking.ErrIncompatibleVaccines):
		writeError(w, http.StatusBadRequest, "incompatible_vaccines", err.Error())
	case errors.Is(err, booking.ErrDoseIntervalTooShort):
		writeError(w, http.StatusBadRequest, "dose_interval_too_short", err.Error())
	case errors.Is(err, booking.ErrDoseOutOfRange):
		writeError(w, http.StatusBadRequest, "dose_out_of_range", err.Error())
	case errors.Is(err, booking.ErrSeriesComplete):
		writeError(w, http.StatusBadRequest, "series_complete", err.Error())
	case errors.Is(err, booking.ErrUnsettledCancellationFee):
		writeError(w, http.StatusBadRequest, "unsettled_cancellation_fee", err.Error())
	case errors.Is(err, booking.ErrInvalidSubject), errors.Is(err, booking.ErrGuestDirectBooking):
		writeError(w, http.StatusBadRequest, "invalid_subject", err.Error())
	case errors.Is(err, booking.ErrSlotCenterMismatch):
		writeError(w, http.StatusBadRequest, "slot_center_mismatch", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleCancelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, booking.ErrTooLateToCancel):
		writeError(w, http.StatusConflict, "too_late_to_cancel", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
