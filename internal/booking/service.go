package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/immucare/vaccine-booking/internal/config"
	"github.com/immucare/vaccine-booking/internal/inventory"
	"github.com/immucare/vaccine-booking/internal/metrics"
	"github.com/immucare/vaccine-booking/internal/notify"
	redisclient "github.com/immucare/vaccine-booking/internal/redis"
	"github.com/immucare/vaccine-booking/internal/slot"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventConsultationRequested  = "CONSULTATION_REQUESTED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentStatusMoved = "APPOINTMENT_STATUS_MOVED"
	EventConsultationExpired    = "CONSULTATION_EXPIRED"
)

var (
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
)

type Service struct {
	repo      Repository
	slots     slot.Allocator
	inventory inventory.Ledger
	locker    redisclient.Locker
	publisher notify.Publisher
	metrics   *metrics.Metrics
	cfg       config.Config
	now       func() time.Time
}

func NewService(
	repo Repository,
	slots slot.Allocator,
	ledger inventory.Ledger,
	locker redisclient.Locker,
	publisher notify.Publisher,
	m *metrics.Metrics,
	cfg config.Config,
) *Service {
	return &Service{
		repo:      repo,
		slots:     slots,
		inventory: ledger,
		locker:    locker,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
	}
}

type BookRequest struct {
	Subject       Subject
	VaccineID     uuid.UUID
	CenterID      uuid.UUID
	SlotID        uuid.UUID
	PaymentMethod string
	Notes         string
}

// Book runs the direct-booking flow: validate the subject and dose, run the
// compatibility rules, then reserve a slot seat and a vaccine dose as one
// logical unit and persist the confirmed appointment. Any failure after the
// slot was taken rolls every prior reservation back.
//
// The returned warning is advisory (another appointment on the same day) and
// never blocks the booking.
func (s *Service) Book(ctx context.Context, req BookRequest) (appt *Appointment, warning string, err error) {
	started := s.now()
	defer func() {
		s.metrics.BookingDuration.Observe(time.Since(started).Seconds())
		s.metrics.BookingsTotal.WithLabelValues(bookingResult(err)).Inc()
	}()

	if err := req.Subject.Validate(); err != nil {
		return nil, "", err
	}
	if req.Subject.Kind == SubjectGuest {
		return nil, "", ErrGuestDirectBooking
	}

	subjectKey := req.Subject.Key()
	if err := s.checkNoOutstandingFees(ctx, subjectKey); err != nil {
		return nil, "", err
	}

	vaccine, err := s.repo.GetVaccineByID(ctx, req.VaccineID)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.repo.GetCenterByID(ctx, req.CenterID); err != nil {
		return nil, "", err
	}
	sl, err := s.slots.GetByID(ctx, req.SlotID)
	if err != nil {
		return nil, "", err
	}
	if sl.CenterID != req.CenterID {
		return nil, "", ErrSlotCenterMismatch
	}
	if !sl.Reservable(s.now()) {
		return nil, "", slot.ErrSlotUnavailable
	}

	completed, err := s.repo.ListCompletedVaccinations(ctx, subjectKey, vaccine.ID)
	if err != nil {
		return nil, "", fmt.Errorf("load vaccination history: %w", err)
	}
	pendingSameVaccine, err := s.repo.ListActiveAppointmentsByVaccine(ctx, subjectKey, vaccine.ID)
	if err != nil {
		return nil, "", fmt.Errorf("load pending doses: %w", err)
	}

	dose := NextDose(completed, pendingSameVaccine)
	if err := ValidateDose(*vaccine, dose, completed); err != nil {
		return nil, "", err
	}

	window := time.Duration(CompatibilityWindowDays) * 24 * time.Hour
	existing, err := s.repo.ListActiveAppointments(ctx, subjectKey, sl.StartsAt.Add(-window), sl.StartsAt.Add(window))
	if err != nil {
		return nil, "", fmt.Errorf("load appointment window: %w", err)
	}
	pairs, err := s.repo.ListIncompatibilities(ctx, vaccine.ID)
	if err != nil {
		return nil, "", fmt.Errorf("load incompatibilities: %w", err)
	}

	candidate := Candidate{
		Vaccine:    *vaccine,
		SlotID:     req.SlotID,
		Date:       sl.StartsAt,
		DoseNumber: dose,
	}
	warning, err = CheckCompatibility(candidate, existing, SymmetricIncompatibilityMap(vaccine.ID, pairs))
	if err != nil {
		return nil, "", err
	}
	if err := CheckDoseInterval(candidate, completed); err != nil {
		return nil, "", err
	}

	// Cheap stock existence check before committing to the slot.
	qty, err := s.inventory.StockQuantity(ctx, req.CenterID, vaccine.ID)
	if err != nil {
		if errors.Is(err, inventory.ErrStockNotFound) {
			return nil, "", inventory.ErrOutOfStock
		}
		return nil, "", fmt.Errorf("check stock: %w", err)
	}
	if qty <= 0 {
		return nil, "", inventory.ErrOutOfStock
	}

	err = s.locker.WithLock(ctx, redisclient.SlotKey(req.SlotID), func(lockCtx context.Context) error {
		if err := s.slots.TryReserve(lockCtx, req.SlotID); err != nil {
			return err
		}

		appt = &Appointment{
			ID:          uuid.New(),
			BookingCode: NewBookingCode(),
			Subject:     req.Subject,
			VaccineID:   &vaccine.ID,
			CenterID:    &req.CenterID,
			SlotID:      &req.SlotID,
			ScheduledAt: &sl.StartsAt,
			DoseNumber:  dose,
			Status:      StatusConfirmed,
			Notes:       req.Notes,
		}
		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			s.releaseSlot(lockCtx, req.SlotID)
			return fmt.Errorf("persist appointment: %w", err)
		}

		lotID, err := s.inventory.Reserve(lockCtx, req.CenterID, vaccine.ID, sl.StartsAt)
		if err != nil {
			s.rollbackBooking(lockCtx, appt, nil)
			return err
		}
		appt.ReservedLotID = &lotID

		if err := s.repo.SetReservedLot(lockCtx, appt.ID, lotID); err != nil {
			s.rollbackBooking(lockCtx, appt, &lotID)
			return fmt.Errorf("store reserved lot: %w", err)
		}

		payment := &Payment{
			AppointmentID: appt.ID,
			AmountCents:   vaccine.PriceCents,
			Method:        req.PaymentMethod,
			Status:        PaymentPending,
		}
		if err := s.repo.CreatePayment(lockCtx, payment); err != nil {
			s.rollbackBooking(lockCtx, appt, &lotID)
			return fmt.Errorf("create payment: %w", err)
		}
		if err := s.repo.SetPaymentRef(lockCtx, appt.ID, payment.ID); err != nil {
			s.rollbackBooking(lockCtx, appt, &lotID)
			return fmt.Errorf("store payment ref: %w", err)
		}
		appt.PaymentID = &payment.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, "", ErrSlotBeingBooked
		}
		return nil, "", err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"booking_code": appt.BookingCode,
		"slot_id":      req.SlotID.String(),
		"vaccine_id":   vaccine.ID.String(),
		"dose_number":  dose,
	})
	s.publishCreated(ctx, appt)

	return appt, warning, nil
}

type ConsultationRequest struct {
	Subject   Subject
	VaccineID *uuid.UUID
	Phone     string
	Reason    string
}

// RequestConsultation creates a pending appointment with no slot, center or
// inventory commitment. Guests are allowed here; a free-form profile stands
// in for a user reference.
func (s *Service) RequestConsultation(ctx context.Context, req ConsultationRequest) (*Appointment, error) {
	if err := req.Subject.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkNoOutstandingFees(ctx, req.Subject.Key()); err != nil {
		return nil, err
	}

	var vaccineID *uuid.UUID
	if req.VaccineID != nil {
		vaccine, err := s.repo.GetVaccineByID(ctx, *req.VaccineID)
		if err != nil {
			return nil, err
		}
		vaccineID = &vaccine.ID
	}

	notes := req.Reason
	if req.Phone != "" {
		notes = fmt.Sprintf("phone: %s", req.Phone)
		if req.Reason != "" {
			notes += "; " + req.Reason
		}
	}

	appt := &Appointment{
		ID:          uuid.New(),
		BookingCode: NewBookingCode(),
		Subject:     req.Subject,
		VaccineID:   vaccineID,
		Status:      StatusPending,
		Notes:       notes,
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("persist consultation request: %w", err)
	}

	s.metrics.ConsultationsTotal.Inc()
	s.logEvent(ctx, appt.ID, EventConsultationRequested, map[string]any{
		"booking_code": appt.BookingCode,
	})
	s.publishCreated(ctx, appt)

	return appt, nil
}

// AdvanceStatus applies one staff-driven state machine edge as a
// compare-and-swap. The cancellation edges go through Cancel instead.
func (s *Service) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	appt, err := s.repo.UpdateAppointmentStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentStatusMoved, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	return appt, nil
}

// ExpireStaleConsultations cancels pending consultation requests older than
// the configured TTL. Run periodically by the lot-expiry worker.
func (s *Service) ExpireStaleConsultations(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.ConsultationTTL)
	stale, err := s.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale consultations: %w", err)
	}

	for _, appt := range stale {
		if _, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusCancelled); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				log.Printf("failed to expire consultation %s: %v", appt.ID, err)
			}
			continue
		}
		s.logEvent(ctx, appt.ID, EventConsultationExpired, map[string]any{
			"created_at": appt.CreatedAt,
		})
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) checkNoOutstandingFees(ctx context.Context, subjectKey string) error {
	outstanding, err := s.repo.OutstandingFees(ctx, subjectKey)
	if err != nil {
		return fmt.Errorf("check outstanding fees: %w", err)
	}
	if outstanding > 0 {
		return &UnsettledFeeError{OutstandingCents: outstanding}
	}
	return nil
}

// rollbackBooking compensates a partially-applied booking: returns the
// reserved dose (if any), frees the slot seat and removes the appointment
// row. Failures here leave the system inconsistent and are surfaced loudly.
func (s *Service) rollbackBooking(ctx context.Context, appt *Appointment, lotID *uuid.UUID) {
	ctx = context.WithoutCancel(ctx)

	if lotID != nil && appt.CenterID != nil && appt.VaccineID != nil {
		if err := s.inventory.Release(ctx, *appt.CenterID, *appt.VaccineID, *lotID); err != nil {
			s.consistencyAlert("release lot %s for appointment %s: %v", *lotID, appt.ID, err)
		}
	}
	if appt.SlotID != nil {
		s.releaseSlot(ctx, *appt.SlotID)
	}
	if err := s.repo.DeleteAppointment(ctx, appt.ID); err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		s.consistencyAlert("delete appointment %s during rollback: %v", appt.ID, err)
	}
}

func (s *Service) releaseSlot(ctx context.Context, slotID uuid.UUID) {
	if err := s.slots.Release(context.WithoutCancel(ctx), slotID); err != nil {
		s.consistencyAlert("release slot %s: %v", slotID, err)
	}
}

func (s *Service) consistencyAlert(format string, args ...any) {
	s.metrics.ConsistencyAlerts.Inc()
	log.Printf("CONSISTENCY ALERT: "+format, args...)
}

func (s *Service) publishCreated(ctx context.Context, appt *Appointment) {
	ev := notify.AppointmentEvent{
		AppointmentID: appt.ID,
		BookingCode:   appt.BookingCode,
		SubjectKey:    appt.Subject.Key(),
		VaccineID:     appt.VaccineID,
		CenterID:      appt.CenterID,
		ScheduledAt:   appt.ScheduledAt,
		DoseNumber:    appt.DoseNumber,
		Status:        string(appt.Status),
		OccurredAt:    s.now(),
	}
	if err := s.publisher.AppointmentCreated(ctx, ev); err != nil {
		log.Printf("failed to publish created event for %s: %v", appt.ID, err)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, slot.ErrSlotUnavailable),
		errors.Is(err, inventory.ErrOutOfStock),
		errors.Is(err, inventory.ErrNoStockAvailable),
		errors.Is(err, ErrSlotBeingBooked):
		return "conflict"
	case errors.Is(err, ErrDuplicateVaccineInSlot),
		errors.Is(err, ErrIncompatibleVaccines),
		errors.Is(err, ErrDoseIntervalTooShort),
		errors.Is(err, ErrDoseOutOfRange),
		errors.Is(err, ErrSeriesComplete),
		errors.Is(err, ErrUnsettledCancellationFee),
		errors.Is(err, ErrInvalidSubject),
		errors.Is(err, ErrGuestDirectBooking):
		return "rejected"
	default:
		return "error"
	}
}
