package api

import (
	"time"

	"github.com/google/uuid"
)

type BookRequest struct {
	DependentID   string `json:"dependent_id,omitempty"`
	VaccineID     string `json:"vaccine_id"`
	CenterID      string `json:"center_id"`
	SlotID        string `json:"slot_id"`
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes,omitempty"`
}

type ConsultationRequest struct {
	VaccineID string `json:"vaccine_id,omitempty"`
	GuestName string `json:"guest_name,omitempty"`
	Phone     string `json:"phone"`
	Reason    string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	BookingCode   string     `json:"booking_code"`
	Status        string     `json:"status"`
	VaccineID     *uuid.UUID `json:"vaccine_id,omitempty"`
	CenterID      *uuid.UUID `json:"center_id,omitempty"`
	SlotID        *uuid.UUID `json:"slot_id,omitempty"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	DoseNumber    int        `json:"dose_number,omitempty"`
	ReservedLotID *uuid.UUID `json:"reserved_lot_id,omitempty"`
	PaymentID     *uuid.UUID `json:"payment_id,omitempty"`
	Warning       string     `json:"warning,omitempty"`
}

type CancelResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	FeeCents    int64               `json:"fee_cents"`
}

type SlotResponse struct {
	ID              uuid.UUID `json:"id"`
	CenterID        uuid.UUID `json:"center_id"`
	Date            string    `json:"date"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	MaxCapacity     int       `json:"max_capacity"`
	CurrentBookings int       `json:"current_bookings"`
}

type StockResponse struct {
	CenterID      uuid.UUID `json:"center_id"`
	VaccineID     uuid.UUID `json:"vaccine_id"`
	StockQuantity int       `json:"stock_quantity"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
