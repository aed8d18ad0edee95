package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/immucare/vaccine-booking/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func appointmentResponse(appt *booking.Appointment, warning string) AppointmentResponse {
	return AppointmentResponse{
		ID:            appt.ID,
		BookingCode:   appt.BookingCode,
		Status:        string(appt.Status),
		VaccineID:     appt.VaccineID,
		CenterID:      appt.CenterID,
		SlotID:        appt.SlotID,
		ScheduledAt:   appt.ScheduledAt,
		DoseNumber:    appt.DoseNumber,
		ReservedLotID: appt.ReservedLotID,
		PaymentID:     appt.PaymentID,
		Warning:       warning,
	}
}
