package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immucare/vaccine-booking/internal/inventory"
)

func TestCancellationFee_Bands(t *testing.T) {
	const amount = int64(2500)

	cases := []struct {
		name   string
		notice time.Duration
		want   int64
	}{
		{"inside the full band", 10 * time.Hour, 2500},
		{"just under the full boundary", 23*time.Hour + 59*time.Minute, 2500},
		{"at the full boundary charges half", 24 * time.Hour, 1250},
		{"inside the half band", 30 * time.Hour, 1250},
		{"at the half boundary charges nothing", 48 * time.Hour, 0},
		{"well past the bands", 200 * time.Hour, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CancellationFee(amount, tc.notice, 24, 48))
		})
	}
}

func TestCancellationFee_NonIncreasing(t *testing.T) {
	prev := int64(1 << 62)
	for hours := 0; hours <= 72; hours++ {
		fee := CancellationFee(2500, time.Duration(hours)*time.Hour, 24, 48)
		require.LessOrEqual(t, fee, prev, "fee must not grow with more notice (at %dh)", hours)
		prev = fee
	}
}

// bookFixture books one confirmed appointment with the slot starting at the
// given offset from the test clock.
func bookFixture(t *testing.T, env *testEnv, userID uuid.UUID, startsIn time.Duration) (*Appointment, Vaccine, inventory.Lot, uuid.UUID) {
	t.Helper()

	vaccine := env.addVaccine(1, 0, 2500)
	center := env.addCenter()
	sl := env.addSlot(center.ID, baseNow.Add(startsIn), 5)
	lot := env.addStock(center.ID, vaccine.ID, 20, baseNow.AddDate(1, 0, 0))

	appt, _, err := env.svc.Book(context.Background(), BookRequest{
		Subject:       SelfSubject(userID),
		VaccineID:     vaccine.ID,
		CenterID:      center.ID,
		SlotID:        sl.ID,
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	return appt, vaccine, lot, sl.ID
}

func TestCancel_ReleasesEverything(t *testing.T) {
	env := newTestEnv(baseNow)
	userID := uuid.New()
	appt, _, lot, slotID := bookFixture(t, env, userID, 10*time.Hour)

	cancelled, fee, err := env.svc.Cancel(context.Background(), appt.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Ten hours of notice sits inside the full-fee band.
	assert.Equal(t, int64(2500), fee)

	payment, err := env.repo.GetPaymentByAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), payment.CancellationFeeCents)
	assert.Nil(t, payment.FeeSettledAt)

	// Seat and dose are back.
	sl, err := env.slots.GetByID(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, 0, sl.CurrentBookings)

	restored, _ := env.ledger.GetLot(lot.ID)
	assert.Equal(t, 20, restored.RemainingQuantity)

	qty, err := env.ledger.StockQuantity(context.Background(), *appt.CenterID, *appt.VaccineID)
	require.NoError(t, err)
	assert.Equal(t, 20, qty)
}

func TestCancel_TooLateForConfirmed(t *testing.T) {
	env := newTestEnv(baseNow)
	userID := uuid.New()
	appt, _, _, slotID := bookFixture(t, env, userID, 5*time.Hour)

	_, _, err := env.svc.Cancel(context.Background(), appt.ID, userID)
	assert.ErrorIs(t, err, ErrTooLateToCancel)

	// Nothing released, nothing cancelled.
	got, err := env.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	sl, err := env.slots.GetByID(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, 1, sl.CurrentBookings)
}

func TestCancel_OnlyBookerMayCancel(t *testing.T) {
	env := newTestEnv(baseNow)
	userID := uuid.New()
	appt, _, _, _ := bookFixture(t, env, userID, 10*time.Hour)

	_, _, err := env.svc.Cancel(context.Background(), appt.ID, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancel_FreeVaccineHasNoFee(t *testing.T) {
	env := newTestEnv(baseNow)
	vaccine := env.addVaccine(1, 0, 0)
	center := env.addCenter()
	sl := env.addSlot(center.ID, baseNow.Add(10*time.Hour), 5)
	env.addStock(center.ID, vaccine.ID, 20, baseNow.AddDate(1, 0, 0))

	userID := uuid.New()
	appt, _, err := env.svc.Book(context.Background(), BookRequest{
		Subject:       SelfSubject(userID),
		VaccineID:     vaccine.ID,
		CenterID:      center.ID,
		SlotID:        sl.ID,
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	_, fee, err := env.svc.Cancel(context.Background(), appt.ID, userID)
	require.NoError(t, err)
	assert.Zero(t, fee)

	payment, err := env.repo.GetPaymentByAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Zero(t, payment.CancellationFeeCents)
}

func TestCancel_PendingConsultationIgnoresCutoff(t *testing.T) {
	env := newTestEnv(baseNow)
	userID := uuid.New()

	appt, err := env.svc.RequestConsultation(context.Background(), ConsultationRequest{
		Subject: SelfSubject(userID),
		Phone:   "555-0100",
	})
	require.NoError(t, err)

	cancelled, fee, err := env.svc.Cancel(context.Background(), appt.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Zero(t, fee)
}

func TestCancel_AlreadyCancelledRejected(t *testing.T) {
	env := newTestEnv(baseNow)
	userID := uuid.New()
	appt, _, _, _ := bookFixture(t, env, userID, 10*time.Hour)

	_, _, err := env.svc.Cancel(context.Background(), appt.ID, userID)
	require.NoError(t, err)

	_, _, err = env.svc.Cancel(context.Background(), appt.ID, userID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

// A cancellation fee left unsettled blocks any further booking for the same
// person until it is paid.
func TestUnsettledFeeBlocksRebooking(t *testing.T) {
	env := newTestEnv(baseNow)
	userID := uuid.New()
	appt, vaccine, _, _ := bookFixture(t, env, userID, 10*time.Hour)

	_, fee, err := env.svc.Cancel(context.Background(), appt.ID, userID)
	require.NoError(t, err)
	require.Positive(t, fee)

	retry := env.addSlot(*appt.CenterID, baseNow.Add(72*time.Hour), 5)
	_, _, err = env.svc.Book(context.Background(), BookRequest{
		Subject:       SelfSubject(userID),
		VaccineID:     vaccine.ID,
		CenterID:      *appt.CenterID,
		SlotID:        retry.ID,
		PaymentMethod: "card",
	})
	require.ErrorIs(t, err, ErrUnsettledCancellationFee)

	var fe *UnsettledFeeError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fee, fe.OutstandingCents)

	// Consultations are blocked the same way.
	_, err = env.svc.RequestConsultation(context.Background(), ConsultationRequest{
		Subject: SelfSubject(userID),
		Phone:   "555-0200",
	})
	assert.ErrorIs(t, err, ErrUnsettledCancellationFee)
}
