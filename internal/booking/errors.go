package booking

import (
	"errors"
	"fmt"
)

var (
	ErrVaccineNotFound     = errors.New("vaccine not found")
	ErrCenterNotFound      = errors.New("center not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")

	ErrInvalidSubject     = errors.New("invalid booking subject")
	ErrGuestDirectBooking = errors.New("guests must request a consultation instead of booking directly")
	ErrSlotCenterMismatch = errors.New("slot does not belong to the requested center")

	ErrDoseOutOfRange = errors.New("dose number exceeds the doses required by the vaccine")
	ErrSeriesComplete = errors.New("vaccination series already complete")

	ErrDuplicateVaccineInSlot = errors.New("an appointment for this vaccine already exists in this slot")
	ErrIncompatibleVaccines   = errors.New("incompatible vaccines too close together")
	ErrDoseIntervalTooShort   = errors.New("interval between doses is too short")

	ErrForbidden                = errors.New("requester is not the appointment owner")
	ErrInvalidState             = errors.New("appointment state does not allow this operation")
	ErrTooLateToCancel          = errors.New("too close to the appointment time to cancel")
	ErrUnsettledCancellationFee = errors.New("an unsettled cancellation fee blocks new bookings")
)

// IncompatibilityError carries the rule parameters so callers can show
// actionable guidance. It matches ErrIncompatibleVaccines via errors.Is.
type IncompatibilityError struct {
	OtherVaccineID string
	MinDaysBetween int
	ActualDays     int
}

func (e *IncompatibilityError) Error() string {
	return fmt.Sprintf("incompatible with vaccine %s: requires %d days between doses, got %d",
		e.OtherVaccineID, e.MinDaysBetween, e.ActualDays)
}

func (e *IncompatibilityError) Is(target error) bool {
	return target == ErrIncompatibleVaccines
}

// DoseIntervalError matches ErrDoseIntervalTooShort via errors.Is.
type DoseIntervalError struct {
	RequiredDays int
	ActualDays   int
}

func (e *DoseIntervalError) Error() string {
	return fmt.Sprintf("doses must be %d days apart, got %d", e.RequiredDays, e.ActualDays)
}

func (e *DoseIntervalError) Is(target error) bool {
	return target == ErrDoseIntervalTooShort
}

// UnsettledFeeError carries the outstanding amount. Matches
// ErrUnsettledCancellationFee via errors.Is.
type UnsettledFeeError struct {
	OutstandingCents int64
}

func (e *UnsettledFeeError) Error() string {
	return fmt.Sprintf("unsettled cancellation fee of %d cents must be paid before booking", e.OutstandingCents)
}

func (e *UnsettledFeeError) Is(target error) bool {
	return target == ErrUnsettledCancellationFee
}
