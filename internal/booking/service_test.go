package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immucare/vaccine-booking/internal/config"
	"github.com/immucare/vaccine-booking/internal/inventory"
	"github.com/immucare/vaccine-booking/internal/metrics"
	"github.com/immucare/vaccine-booking/internal/notify"
	redisclient "github.com/immucare/vaccine-booking/internal/redis"
	"github.com/immucare/vaccine-booking/internal/slot"
)

type testEnv struct {
	svc    *Service
	repo   *MemoryRepository
	slots  *slot.MemoryAllocator
	ledger *inventory.MemoryLedger

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(now time.Time) *testEnv {
	env := &testEnv{
		repo:   NewMemoryRepository(),
		slots:  slot.NewMemoryAllocator(),
		ledger: inventory.NewMemoryLedger(),
		now:    now,
	}
	clock := func() time.Time {
		env.mu.Lock()
		defer env.mu.Unlock()
		return env.now
	}
	env.repo.SetClock(clock)
	env.slots.SetClock(clock)
	env.ledger.SetClock(clock)

	cfg := config.Config{
		CancelCutoffHours:  6,
		FullFeeNoticeHours: 24,
		HalfFeeNoticeHours: 48,
		ConsultationTTL:    72 * time.Hour,
	}
	env.svc = NewService(env.repo, env.slots, env.ledger, redisclient.NoopLocker{}, notify.NoopPublisher{}, metrics.NewNop(), cfg)
	env.svc.now = clock
	return env
}

func (env *testEnv) setNow(now time.Time) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.now = now
}

func (env *testEnv) addVaccine(doses, daysApart int, priceCents int64) Vaccine {
	v := Vaccine{ID: uuid.New(), Name: "test vaccine", DosesRequired: doses, DaysBetweenDoses: daysApart, PriceCents: priceCents}
	env.repo.PutVaccine(v)
	return v
}

func (env *testEnv) addCenter() Center {
	c := Center{ID: uuid.New(), Name: "test center"}
	env.repo.PutCenter(c)
	return c
}

func (env *testEnv) addSlot(centerID uuid.UUID, startsAt time.Time, capacity int) slot.Slot {
	s := slot.Slot{
		ID:          uuid.New(),
		CenterID:    centerID,
		Date:        time.Date(startsAt.Year(), startsAt.Month(), startsAt.Day(), 0, 0, 0, 0, time.UTC),
		StartsAt:    startsAt,
		EndsAt:      startsAt.Add(time.Hour),
		MaxCapacity: capacity,
	}
	env.slots.Put(s)
	return s
}

func (env *testEnv) addStock(centerID, vaccineID uuid.UUID, quantity int, lotExpiry time.Time) inventory.Lot {
	lot := inventory.Lot{
		ID:                uuid.New(),
		VaccineID:         vaccineID,
		LotNumber:         "T-001",
		Quantity:          quantity,
		RemainingQuantity: quantity,
		ExpiryDate:        lotExpiry,
	}
	env.ledger.PutLot(lot)
	env.ledger.PutStock(centerID, vaccineID, quantity)
	return lot
}

var baseNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestBook_Success(t *testing.T) {
	env := newTestEnv(baseNow)
	vaccine := env.addVaccine(2, 21, 2500)
	center := env.addCenter()
	sl := env.addSlot(center.ID, baseNow.AddDate(0, 0, 4), 10)
	lot := env.addStock(center.ID, vaccine.ID, 20, baseNow.AddDate(1, 0, 0))

	userID := uuid.New()
	appt, warning, err := env.svc.Book(context.Background(), BookRequest{
		Subject:       SelfSubject(userID),
		VaccineID:     vaccine.ID,
		CenterID:      center.ID,
		SlotID:        sl.ID,
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	assert.Empty(t, warning)

	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, 1, appt.DoseNumber)
	assert.NotEmpty(t, appt.BookingCode)
	require.NotNil(t, appt.ReservedLotID)
	assert.Equal(t, lot.ID, *appt.ReservedLotID)
	require.NotNil(t, appt.PaymentID)

	// One seat taken, one dose reserved.
	got, err := env.slots.GetByID(context.Background(), sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentBookings)

	qty, err := env.ledger.StockQuantity(context.Background(), center.ID, vaccine.ID)
	require.NoError(t, err)
	assert.Equal(t, 19, qty)

	reserved, _ := env.ledger.GetLot(lot.ID)
	assert.Equal(t, 19, reserved.RemainingQuantity)

	payment, err := env.repo.GetPaymentByAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), payment.AmountCents)
	assert.Equal(t, PaymentPending, payment.Status)

	events := env.repo.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventAppointmentCreated, events[len(events)-1].EventType)
}

func TestBook_ConcurrentOnLastSeat(t *testing.T) {
	env := newTestEnv(baseNow)
	vaccine := env.addVaccine(1, 0, 2500)
	center := env.addCenter()
	sl := env.addSlot(center.ID, baseNow.AddDate(0, 0, 4), 1)
	env.addStock(center.ID, vaccine.ID, 20, baseNow.AddDate(1, 0, 0))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = env.svc.Book(context.Background(), BookRequest{
				Subject:       SelfSubject(uuid.New()),
				VaccineID:     vaccine.ID,
				CenterID:      center.ID,
				SlotID:        sl.ID,
				PaymentMethod: "card",
			})
		}(i)
	}
	wg.Wait()

	okCount, conflictCount := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, slot.ErrSlotUnavailable):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, conflictCount)

	got, err := env.slots.GetByID(context.Background(), sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentBookings)
}

func TestBook_OutOfStockBeforeSlotReserve(t *testing.T) {
	env := newTestEnv(baseNow)
	vaccine := env.addVaccine(1, 0, 2500)
	center := env.addCenter()
	sl := env.addSlot(center.ID, baseNow.AddDate(0, 0, 4), 5)
	env.ledger.PutStock(center.ID, vaccine.ID, 0)

	_, _, err := env.svc.Book(context.Background(), BookRequest{
		Subject:       SelfSubject(uuid.New()),
		VaccineID:     vaccine.ID,
		CenterID:      center.ID,
		SlotID:        sl.ID,
		PaymentMethod: "card",
	})
	require.ErrorIs(t, err, inventory.ErrOutOfStock)

	// Slot capacity untouched.
	got, err := env.slots.GetByID(context.Background(), sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentBookings)
}

func TestBook_RollbackWhenNoEligibleLot(t *testing.T) {
	env := newTestEnv(baseNow)
	vaccine := env.addVaccine(1, 0, 2500)
	center := env.addCenter()
	sl := env.addSlot(center.ID, baseNow.AddDate(0, 0, 4), 5)

	// Positive aggregate stock but every lot expires before the visit, so
	// inventory reservation fails after the slot seat was taken.
	env.ledger.PutLot(inventory.Lot{
		ID:                uuid.New(),
		VaccineID:         vaccine.ID,
		Quantity:          10,
		RemainingQuantity: 10,
		ExpiryDate:        baseNow.AddDate(0, 0, 2),
	})
	env.ledger.PutStock(center.ID, vaccine.ID, 10)

	_, _, err := env.svc.Book(context.Background(), BookRequest{
		Subject:       SelfSubject(uuid.New()),
		VaccineID:     vaccine.ID,
		CenterID:      center.ID,
		SlotID:        sl.ID,
		PaymentMethod: "card",
	})
	require.ErrorIs(t, err, inventory.ErrNoStockAvailable)

	// Rollback restored the seat and removed the appointment.
	got, err := env.slots.GetByID(context.Background(), sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentBookings)

	qty, err := env.ledger.StockQuantity(context.Background(), center.ID, vaccine.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, qty)
}

func TestBook_DoseSequencing(t *testing.T) {
	start := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	env := newTestEnv(start)
	vaccine := env.addVaccine(2, 21, 2500)
	center := env.addCenter()
	subject := SelfSubject(uuid.New())

	env.repo.PutCompletedVaccination(CompletedVaccination{
		ID:         uuid.New(),
		SubjectKey: subject.Key(),
		VaccineID:  vaccine.ID,
		DoseNumber: 1,
		Date:       time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	env.addStock(center.ID, vaccine.ID, 20, start.AddDate(1, 0, 0))

	t.Run("second dose too soon rejected", func(t *testing.T) {
		early := env.addSlot(center.ID, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), 5)
		_, _, err := env.svc.Book(context.Background(), BookRequest{
			Subject:       subject,
			VaccineID:     vaccine.ID,
			CenterID:      center.ID,
			SlotID:        early.ID,
			PaymentMethod: "card",
		})
		assert.ErrorIs(t, err, ErrDoseIntervalTooShort)
	})

	t.Run("second dose after the interval accepted", func(t *testing.T) {
		onTime := env.addSlot(center.ID, time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC), 5)
		appt, _, err := env.svc.Book(context.Background(), BookRequest{
			Subject:       subject,
			VaccineID:     vaccine.ID,
			CenterID:      center.ID,
			SlotID:        onTime.ID,
			PaymentMethod: "card",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, appt.DoseNumber)
	})
}

func TestBook_IncompatibleVaccinesAcrossDates(t *testing.T) {
	env := newTestEnv(baseNow)
	vaccineA := env.addVaccine(1, 0, 2500)
	vaccineB := env.addVaccine(1, 0, 3000)
	center := env.addCenter()
	env.repo.PutIncompatibility(VaccineIncompatibility{
		VaccineAID:     vaccineA.ID,
		VaccineBID:     vaccineB.ID,
		MinDaysBetween: 14,
	})
	env.addStock(center.ID, vaccineA.ID, 20, baseNow.AddDate(1, 0, 0))
	env.addStock(center.ID, vaccineB.ID, 20, baseNow.AddDate(1, 0, 0))

	subject := SelfSubject(uuid.New())

	slotA := env.addSlot(center.ID, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), 5)
	_, _, err := env.svc.Book(context.Background(), BookRequest{
		Subject: subject, VaccineID: vaccineA.ID, CenterID: center.ID, SlotID: slotA.ID, PaymentMethod: "card",
	})
	require.NoError(t, err)

	t.Run("other vaccine inside the window rejected symmetrically", func(t *testing.T) {
		tooSoon := env.addSlot(center.ID, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), 5)
		_, _, err := env.svc.Book(context.Background(), BookRequest{
			Subject: subject, VaccineID: vaccineB.ID, CenterID: center.ID, SlotID: tooSoon.ID, PaymentMethod: "card",
		})
		assert.ErrorIs(t, err, ErrIncompatibleVaccines)
	})

	t.Run("other vaccine outside the window accepted", func(t *testing.T) {
		farEnough := env.addSlot(center.ID, time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC), 5)
		_, _, err := env.svc.Book(context.Background(), BookRequest{
			Subject: subject, VaccineID: vaccineB.ID, CenterID: center.ID, SlotID: farEnough.ID, PaymentMethod: "card",
		})
		assert.NoError(t, err)
	})
}

func TestBook_GuestsRejected(t *testing.T) {
	env := newTestEnv(baseNow)
	vaccine := env.addVaccine(1, 0, 2500)
	center := env.addCenter()
	sl := env.addSlot(center.ID, baseNow.AddDate(0, 0, 4), 5)
	env.addStock(center.ID, vaccine.ID, 20, baseNow.AddDate(1, 0, 0))

	_, _, err := env.svc.Book(context.Background(), BookRequest{
		Subject:       GuestSubject(GuestProfile{FullName: "Walk In", Phone: "555-0001"}),
		VaccineID:     vaccine.ID,
		CenterID:      center.ID,
		SlotID:        sl.ID,
		PaymentMethod: "cash",
	})
	assert.ErrorIs(t, err, ErrGuestDirectBooking)
}

func TestRequestConsultation(t *testing.T) {
	env := newTestEnv(baseNow)

	t.Run("guest path creates a pending appointment with no slot", func(t *testing.T) {
		appt, err := env.svc.RequestConsultation(context.Background(), ConsultationRequest{
			Subject: GuestSubject(GuestProfile{FullName: "Walk In", Phone: "555-0001"}),
			Phone:   "555-0001",
			Reason:  "first visit",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusPending, appt.Status)
		assert.Nil(t, appt.SlotID)
		assert.Nil(t, appt.CenterID)
		assert.Contains(t, appt.Notes, "555-0001")
	})

	t.Run("unknown vaccine rejected", func(t *testing.T) {
		missing := uuid.New()
		_, err := env.svc.RequestConsultation(context.Background(), ConsultationRequest{
			Subject:   SelfSubject(uuid.New()),
			VaccineID: &missing,
			Phone:     "555-0002",
		})
		assert.ErrorIs(t, err, ErrVaccineNotFound)
	})
}

func TestAdvanceStatus(t *testing.T) {
	env := newTestEnv(baseNow)
	appt := &Appointment{
		ID:          uuid.New(),
		BookingCode: NewBookingCode(),
		Subject:     SelfSubject(uuid.New()),
		Status:      StatusConfirmed,
	}
	require.NoError(t, env.repo.CreateAppointment(context.Background(), appt))

	t.Run("valid forward edge", func(t *testing.T) {
		updated, err := env.svc.AdvanceStatus(context.Background(), appt.ID, StatusConfirmed, StatusCheckedIn)
		require.NoError(t, err)
		assert.Equal(t, StatusCheckedIn, updated.Status)
	})

	t.Run("edge not in the state machine rejected", func(t *testing.T) {
		_, err := env.svc.AdvanceStatus(context.Background(), appt.ID, StatusCheckedIn, StatusCompleted)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestExpireStaleConsultations(t *testing.T) {
	env := newTestEnv(baseNow)

	stale, err := env.svc.RequestConsultation(context.Background(), ConsultationRequest{
		Subject: GuestSubject(GuestProfile{Phone: "555-0003"}),
		Phone:   "555-0003",
	})
	require.NoError(t, err)

	env.setNow(baseNow.Add(96 * time.Hour))
	require.NoError(t, env.svc.ExpireStaleConsultations(context.Background()))

	got, err := env.repo.GetAppointmentByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}
