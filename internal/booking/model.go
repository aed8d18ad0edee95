package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCheckedIn   AppointmentStatus = "checked_in"
	StatusScreening   AppointmentStatus = "screening"
	StatusApproved    AppointmentStatus = "approved"
	StatusRejected    AppointmentStatus = "rejected"
	StatusInjecting   AppointmentStatus = "injecting"
	StatusMonitoring  AppointmentStatus = "monitoring"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// staffTransitions holds the forward edges driven by staff workflows.
// The cancellation edges (pending/confirmed -> cancelled) are owned by
// the CancellationHandler and are not listed here.
var staffTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:    {StatusConfirmed, StatusRescheduled},
	StatusConfirmed:  {StatusCheckedIn, StatusRescheduled},
	StatusCheckedIn:  {StatusScreening},
	StatusScreening:  {StatusApproved, StatusRejected},
	StatusApproved:   {StatusInjecting},
	StatusInjecting:  {StatusMonitoring},
	StatusMonitoring: {StatusCompleted},
}

// CanTransition reports whether a staff-driven move from one status to
// another is allowed by the appointment state machine.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range staffTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type SubjectKind string

const (
	SubjectSelf      SubjectKind = "self"
	SubjectDependent SubjectKind = "dependent"
	SubjectGuest     SubjectKind = "guest"
)

type GuestProfile struct {
	FullName string
	Phone    string
}

// Subject identifies who receives the vaccination. Exactly one variant is
// populated: a registered user booking for themselves, a dependent booked
// by its owner, or an unauthenticated guest profile.
type Subject struct {
	Kind        SubjectKind
	UserID      uuid.UUID // self, and the owner for dependents
	DependentID uuid.UUID // dependents only
	Guest       *GuestProfile
}

func SelfSubject(userID uuid.UUID) Subject {
	return Subject{Kind: SubjectSelf, UserID: userID}
}

func DependentSubject(ownerID, dependentID uuid.UUID) Subject {
	return Subject{Kind: SubjectDependent, UserID: ownerID, DependentID: dependentID}
}

func GuestSubject(profile GuestProfile) Subject {
	return Subject{Kind: SubjectGuest, Guest: &profile}
}

// Key returns a stable identity string used to scope history lookups
// (completed vaccinations, pending appointments, unsettled fees) to one
// person regardless of how they were referenced.
func (s Subject) Key() string {
	switch s.Kind {
	case SubjectSelf:
		return "user:" + s.UserID.String()
	case SubjectDependent:
		return "dependent:" + s.DependentID.String()
	case SubjectGuest:
		if s.Guest != nil {
			return "guest:" + s.Guest.Phone
		}
	}
	return ""
}

// BookedBy reports whether the given user made the booking and may
// therefore cancel it. Guest subjects have no owning user.
func (s Subject) BookedBy(userID uuid.UUID) bool {
	switch s.Kind {
	case SubjectSelf, SubjectDependent:
		return s.UserID == userID
	}
	return false
}

func (s Subject) Validate() error {
	switch s.Kind {
	case SubjectSelf:
		if s.UserID == uuid.Nil {
			return fmt.Errorf("%w: self subject requires a user id", ErrInvalidSubject)
		}
	case SubjectDependent:
		if s.UserID == uuid.Nil || s.DependentID == uuid.Nil {
			return fmt.Errorf("%w: dependent subject requires owner and dependent ids", ErrInvalidSubject)
		}
	case SubjectGuest:
		if s.Guest == nil || s.Guest.Phone == "" {
			return fmt.Errorf("%w: guest subject requires a profile with a phone", ErrInvalidSubject)
		}
	default:
		return fmt.Errorf("%w: unknown subject kind %q", ErrInvalidSubject, s.Kind)
	}
	return nil
}

type Vaccine struct {
	ID               uuid.UUID
	Name             string
	DosesRequired    int
	DaysBetweenDoses int // meaningful only when DosesRequired > 1
	PriceCents       int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Center struct {
	ID        uuid.UUID
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VaccineIncompatibility is a symmetric pair: administering either vaccine
// within MinDaysBetween days of the other is rejected, in both orders.
type VaccineIncompatibility struct {
	VaccineAID     uuid.UUID
	VaccineBID     uuid.UUID
	MinDaysBetween int
}

// CompletedVaccination is an immutable historical record. The booking path
// only ever reads these.
type CompletedVaccination struct {
	ID         uuid.UUID
	SubjectKey string
	VaccineID  uuid.UUID
	DoseNumber int
	Date       time.Time
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentVoided  PaymentStatus = "voided"
)

// Payment records the amount owed for a booking. A cancellation fee, if
// any, is tracked separately from the original payment status and stays
// outstanding until settled.
type Payment struct {
	ID                   uuid.UUID
	AppointmentID        uuid.UUID
	AmountCents          int64
	Method               string
	Status               PaymentStatus
	CancellationFeeCents int64
	FeeSettledAt         *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Appointment struct {
	ID            uuid.UUID
	BookingCode   string
	Subject       Subject
	VaccineID     *uuid.UUID
	CenterID      *uuid.UUID
	SlotID        *uuid.UUID
	ScheduledAt   *time.Time
	DoseNumber    int
	Status        AppointmentStatus
	ReservedLotID *uuid.UUID
	PaymentID     *uuid.UUID
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// NewBookingCode derives a short human-readable code from a fresh UUID.
func NewBookingCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "VB-" + raw[:8]
}
