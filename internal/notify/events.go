// Package notify publishes domain events for the notification collaborator.
// Delivery is fire-and-forget: a failed publish is logged and never fails
// the booking or cancellation that produced it.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	QueueAppointmentCreated   = "appointment.created"
	QueueAppointmentCancelled = "appointment.cancelled"
)

// AppointmentEvent carries enough for downstream consumers (email/SMS,
// analytics) to act without querying the primary database.
type AppointmentEvent struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	BookingCode   string     `json:"booking_code"`
	SubjectKey    string     `json:"subject_key"`
	VaccineID     *uuid.UUID `json:"vaccine_id,omitempty"`
	CenterID      *uuid.UUID `json:"center_id,omitempty"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	DoseNumber    int        `json:"dose_number,omitempty"`
	Status        string     `json:"status"`
	FeeCents      int64      `json:"fee_cents,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

type Publisher interface {
	AppointmentCreated(ctx context.Context, ev AppointmentEvent) error
	AppointmentCancelled(ctx context.Context, ev AppointmentEvent) error
}

// NoopPublisher drops all events. Used in tests and when no broker is
// configured.
type NoopPublisher struct{}

func (NoopPublisher) AppointmentCreated(context.Context, AppointmentEvent) error   { return nil }
func (NoopPublisher) AppointmentCancelled(context.Context, AppointmentEvent) error { return nil }
