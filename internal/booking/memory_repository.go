package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository for tests and
// local development.
type MemoryRepository struct {
	mu           sync.RWMutex
	vaccines     map[uuid.UUID]Vaccine
	centers      map[uuid.UUID]Center
	incompat     []VaccineIncompatibility
	completed    []CompletedVaccination
	appointments map[uuid.UUID]*Appointment
	payments     map[uuid.UUID]*Payment
	events       []EventLog
	nextEventID  int64
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		vaccines:     make(map[uuid.UUID]Vaccine),
		centers:      make(map[uuid.UUID]Center),
		appointments: make(map[uuid.UUID]*Appointment),
		payments:     make(map[uuid.UUID]*Payment),
		now:          time.Now,
	}
}

// SetClock overrides the timestamp source for created/updated fields.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Seed helpers

func (r *MemoryRepository) PutVaccine(v Vaccine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vaccines[v.ID] = v
}

func (r *MemoryRepository) PutCenter(c Center) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.centers[c.ID] = c
}

func (r *MemoryRepository) PutIncompatibility(vi VaccineIncompatibility) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incompat = append(r.incompat, vi)
}

func (r *MemoryRepository) PutCompletedVaccination(cv CompletedVaccination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, cv)
}

// Events returns a copy of the recorded event log. Test helper.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog{}, r.events...)
}

// Interface methods

func (r *MemoryRepository) GetVaccineByID(_ context.Context, id uuid.UUID) (*Vaccine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vaccines[id]
	if !ok {
		return nil, ErrVaccineNotFound
	}
	return &v, nil
}

func (r *MemoryRepository) GetCenterByID(_ context.Context, id uuid.UUID) (*Center, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.centers[id]
	if !ok {
		return nil, ErrCenterNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) ListCompletedVaccinations(_ context.Context, subjectKey string, vaccineID uuid.UUID) ([]CompletedVaccination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []CompletedVaccination
	for _, cv := range r.completed {
		if cv.SubjectKey == subjectKey && cv.VaccineID == vaccineID {
			result = append(result, cv)
		}
	}
	return result, nil
}

func (r *MemoryRepository) ListActiveAppointments(_ context.Context, subjectKey string, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Appointment
	for _, a := range r.appointments {
		if a.Subject.Key() != subjectKey || !activeStatus(a.Status) {
			continue
		}
		if a.ScheduledAt == nil || a.ScheduledAt.Before(from) || a.ScheduledAt.After(to) {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

func (r *MemoryRepository) ListActiveAppointmentsByVaccine(_ context.Context, subjectKey string, vaccineID uuid.UUID) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Appointment
	for _, a := range r.appointments {
		if a.Subject.Key() != subjectKey || !activeStatus(a.Status) {
			continue
		}
		if a.VaccineID == nil || *a.VaccineID != vaccineID {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

func activeStatus(s AppointmentStatus) bool {
	return s == StatusPending || s == StatusConfirmed
}

func (r *MemoryRepository) ListIncompatibilities(_ context.Context, vaccineID uuid.UUID) ([]VaccineIncompatibility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []VaccineIncompatibility
	for _, vi := range r.incompat {
		if vi.VaccineAID == vaccineID || vi.VaccineBID == vaccineID {
			result = append(result, vi)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	now := r.now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	copied := *appt
	r.appointments[appt.ID] = &copied
	return nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = r.now()
	copied := *a
	return &copied, nil
}

func (r *MemoryRepository) SetReservedLot(_ context.Context, apptID uuid.UUID, lotID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[apptID]
	if !ok {
		return ErrAppointmentNotFound
	}
	lot := lotID
	a.ReservedLotID = &lot
	a.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) SetPaymentRef(_ context.Context, apptID, paymentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[apptID]
	if !ok {
		return ErrAppointmentNotFound
	}
	pid := paymentID
	a.PaymentID = &pid
	a.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) CreatePayment(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := r.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	copied := *p
	r.payments[p.ID] = &copied
	return nil
}

func (r *MemoryRepository) GetPaymentByAppointment(_ context.Context, apptID uuid.UUID) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.AppointmentID == apptID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (r *MemoryRepository) RecordCancellationFee(_ context.Context, paymentID uuid.UUID, feeCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok {
		return ErrPaymentNotFound
	}
	p.CancellationFeeCents = feeCents
	p.FeeSettledAt = nil
	p.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) OutstandingFees(_ context.Context, subjectKey string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, p := range r.payments {
		if p.CancellationFeeCents <= 0 || p.FeeSettledAt != nil {
			continue
		}
		a, ok := r.appointments[p.AppointmentID]
		if ok && a.Subject.Key() == subjectKey {
			total += p.CancellationFeeCents
		}
	}
	return total, nil
}

func (r *MemoryRepository) FindStalePending(_ context.Context, createdBefore time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Appointment
	for _, a := range r.appointments {
		if a.Status == StatusPending && a.SlotID == nil && a.CreatedAt.Before(createdBefore) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}
