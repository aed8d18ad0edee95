package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/immucare/vaccine-booking/internal/notify"
)

// CancellationFee computes the fee charged when cancelling with the given
// notice. Non-increasing as notice grows: the full amount under the first
// band, half under the second, nothing beyond it.
func CancellationFee(amountCents int64, notice time.Duration, fullFeeHours, halfFeeHours int) int64 {
	hours := notice.Hours()
	switch {
	case hours < float64(fullFeeHours):
		return amountCents
	case hours < float64(halfFeeHours):
		return amountCents / 2
	default:
		return 0
	}
}

// Cancel reverses a booking on behalf of its original booker: checks the
// cancellation window, records a notice-based fee on the payment, releases
// the reserved lot and slot seat, and marks the appointment cancelled.
func (s *Service) Cancel(ctx context.Context, appointmentID, requesterID uuid.UUID) (appt *Appointment, feeCents int64, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			if errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrTooLateToCancel) {
				result = "rejected"
			}
		}
		s.metrics.CancellationsTotal.WithLabelValues(result).Inc()
	}()

	appt, err = s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, 0, err
	}
	if !appt.Subject.BookedBy(requesterID) {
		return nil, 0, ErrForbidden
	}
	if appt.Status != StatusPending && appt.Status != StatusConfirmed {
		return nil, 0, fmt.Errorf("%w: cannot cancel from %s", ErrInvalidState, appt.Status)
	}

	now := s.now()
	var notice time.Duration
	if appt.ScheduledAt != nil {
		notice = appt.ScheduledAt.Sub(now)
		if appt.Status == StatusConfirmed && notice < time.Duration(s.cfg.CancelCutoffHours)*time.Hour {
			return nil, 0, ErrTooLateToCancel
		}
	}

	if appt.PaymentID != nil {
		payment, err := s.repo.GetPaymentByAppointment(ctx, appt.ID)
		if err != nil && !errors.Is(err, ErrPaymentNotFound) {
			return nil, 0, fmt.Errorf("load payment: %w", err)
		}
		if payment != nil && payment.AmountCents > 0 {
			feeCents = CancellationFee(payment.AmountCents, notice, s.cfg.FullFeeNoticeHours, s.cfg.HalfFeeNoticeHours)
			if feeCents > 0 {
				if err := s.repo.RecordCancellationFee(ctx, payment.ID, feeCents); err != nil {
					return nil, 0, fmt.Errorf("record cancellation fee: %w", err)
				}
			}
		}
	}

	// Releases are independent counters: both must happen, and a failure
	// of either is an operator-visible inconsistency, not a user error.
	if appt.Status == StatusConfirmed && appt.ReservedLotID != nil && appt.CenterID != nil && appt.VaccineID != nil {
		if err := s.inventory.Release(ctx, *appt.CenterID, *appt.VaccineID, *appt.ReservedLotID); err != nil {
			s.consistencyAlert("release lot %s for cancelled appointment %s: %v", *appt.ReservedLotID, appt.ID, err)
		}
	}
	if appt.SlotID != nil {
		s.releaseSlot(ctx, *appt.SlotID)
	}

	cancelled, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		return nil, 0, fmt.Errorf("mark appointment cancelled: %w", err)
	}

	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"fee_cents":    feeCents,
		"notice_hours": notice.Hours(),
	})
	s.publishCancelled(ctx, cancelled, feeCents)

	return cancelled, feeCents, nil
}

func (s *Service) publishCancelled(ctx context.Context, appt *Appointment, feeCents int64) {
	ev := notify.AppointmentEvent{
		AppointmentID: appt.ID,
		BookingCode:   appt.BookingCode,
		SubjectKey:    appt.Subject.Key(),
		VaccineID:     appt.VaccineID,
		CenterID:      appt.CenterID,
		ScheduledAt:   appt.ScheduledAt,
		DoseNumber:    appt.DoseNumber,
		Status:        string(appt.Status),
		FeeCents:      feeCents,
		OccurredAt:    s.now(),
	}
	if err := s.publisher.AppointmentCancelled(ctx, ev); err != nil {
		log.Printf("failed to publish cancelled event for %s: %v", appt.ID, err)
	}
}
