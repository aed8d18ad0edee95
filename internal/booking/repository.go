package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the booking service,
// other than the slot and inventory counters which have their own owners.
type Repository interface {
	GetVaccineByID(ctx context.Context, id uuid.UUID) (*Vaccine, error)
	GetCenterByID(ctx context.Context, id uuid.UUID) (*Center, error)

	// Read-only history used by validation.
	ListCompletedVaccinations(ctx context.Context, subjectKey string, vaccineID uuid.UUID) ([]CompletedVaccination, error)
	// ListActiveAppointments returns the subject's pending/confirmed
	// appointments scheduled inside [from, to].
	ListActiveAppointments(ctx context.Context, subjectKey string, from, to time.Time) ([]Appointment, error)
	// ListActiveAppointmentsByVaccine returns the subject's pending/confirmed
	// appointments for one vaccine regardless of date, for dose sequencing.
	ListActiveAppointmentsByVaccine(ctx context.Context, subjectKey string, vaccineID uuid.UUID) ([]Appointment, error)
	// ListIncompatibilities returns every registered pair involving the
	// vaccine, in either ordering.
	ListIncompatibilities(ctx context.Context, vaccineID uuid.UUID) ([]VaccineIncompatibility, error)

	CreateAppointment(ctx context.Context, appt *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// DeleteAppointment removes a just-created appointment during rollback.
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	// UpdateAppointmentStatus is a compare-and-swap on the status column.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	SetReservedLot(ctx context.Context, apptID uuid.UUID, lotID uuid.UUID) error
	SetPaymentRef(ctx context.Context, apptID, paymentID uuid.UUID) error

	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByAppointment(ctx context.Context, apptID uuid.UUID) (*Payment, error)
	// RecordCancellationFee stores the fee as unsettled on the payment.
	RecordCancellationFee(ctx context.Context, paymentID uuid.UUID, feeCents int64) error
	// OutstandingFees sums the subject's unsettled cancellation fees.
	OutstandingFees(ctx context.Context, subjectKey string) (int64, error)

	// FindStalePending lists pending consultation requests created before
	// the cutoff, for the expiry worker.
	FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
