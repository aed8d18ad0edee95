package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func appointmentAt(vaccineID, slotID uuid.UUID, at time.Time, dose int) Appointment {
	v := vaccineID
	s := slotID
	t := at
	return Appointment{
		ID:          uuid.New(),
		VaccineID:   &v,
		SlotID:      &s,
		ScheduledAt: &t,
		DoseNumber:  dose,
		Status:      StatusConfirmed,
	}
}

func TestCheckCompatibility_SameSlotRules(t *testing.T) {
	vaccineA := Vaccine{ID: uuid.New(), Name: "A", DosesRequired: 1}
	slotID := uuid.New()
	at := day(2024, 3, 1)

	t.Run("same vaccine in same slot rejected", func(t *testing.T) {
		existing := []Appointment{appointmentAt(vaccineA.ID, slotID, at, 1)}
		_, err := CheckCompatibility(Candidate{Vaccine: vaccineA, SlotID: slotID, Date: at, DoseNumber: 2}, existing, nil)
		assert.ErrorIs(t, err, ErrDuplicateVaccineInSlot)
	})

	t.Run("incompatible vaccine in same slot rejected regardless of interval", func(t *testing.T) {
		otherID := uuid.New()
		existing := []Appointment{appointmentAt(otherID, slotID, at, 1)}
		incompat := map[uuid.UUID]int{otherID: 14}

		_, err := CheckCompatibility(Candidate{Vaccine: vaccineA, SlotID: slotID, Date: at, DoseNumber: 1}, existing, incompat)
		require.ErrorIs(t, err, ErrIncompatibleVaccines)

		var ie *IncompatibilityError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, 14, ie.MinDaysBetween)
		assert.Equal(t, 0, ie.ActualDays)
	})

	t.Run("compatible different vaccine in same slot allowed", func(t *testing.T) {
		existing := []Appointment{appointmentAt(uuid.New(), slotID, at, 1)}
		_, err := CheckCompatibility(Candidate{Vaccine: vaccineA, SlotID: slotID, Date: at, DoseNumber: 1}, existing, nil)
		assert.NoError(t, err)
	})
}

func TestCheckCompatibility_CrossDateIncompatibility(t *testing.T) {
	vaccineB := Vaccine{ID: uuid.New(), Name: "B", DosesRequired: 1}
	vaccineAID := uuid.New()
	incompat := map[uuid.UUID]int{vaccineAID: 14}

	existing := []Appointment{appointmentAt(vaccineAID, uuid.New(), day(2024, 3, 1), 1)}

	t.Run("inside the minimum interval rejected", func(t *testing.T) {
		_, err := CheckCompatibility(Candidate{Vaccine: vaccineB, SlotID: uuid.New(), Date: day(2024, 3, 10), DoseNumber: 1}, existing, incompat)
		require.ErrorIs(t, err, ErrIncompatibleVaccines)

		var ie *IncompatibilityError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, 9, ie.ActualDays)
	})

	t.Run("outside the minimum interval allowed", func(t *testing.T) {
		_, err := CheckCompatibility(Candidate{Vaccine: vaccineB, SlotID: uuid.New(), Date: day(2024, 3, 20), DoseNumber: 1}, existing, incompat)
		assert.NoError(t, err)
	})
}

func TestSymmetricIncompatibilityMap(t *testing.T) {
	aID := uuid.New()
	bID := uuid.New()
	pairs := []VaccineIncompatibility{{VaccineAID: aID, VaccineBID: bID, MinDaysBetween: 7}}

	// Both orderings must resolve to the same interval.
	fromA := SymmetricIncompatibilityMap(aID, pairs)
	assert.Equal(t, 7, fromA[bID])

	fromB := SymmetricIncompatibilityMap(bID, pairs)
	assert.Equal(t, 7, fromB[aID])
}

func TestCheckCompatibility_DoseInterval(t *testing.T) {
	vaccine := Vaccine{ID: uuid.New(), Name: "two-dose", DosesRequired: 2, DaysBetweenDoses: 21}

	t.Run("sequential doses too close rejected", func(t *testing.T) {
		existing := []Appointment{appointmentAt(vaccine.ID, uuid.New(), day(2024, 1, 1), 1)}
		_, err := CheckCompatibility(Candidate{Vaccine: vaccine, SlotID: uuid.New(), Date: day(2024, 1, 10), DoseNumber: 2}, existing, nil)
		require.ErrorIs(t, err, ErrDoseIntervalTooShort)

		var de *DoseIntervalError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, 21, de.RequiredDays)
		assert.Equal(t, 9, de.ActualDays)
	})

	t.Run("sequential doses far enough apart allowed", func(t *testing.T) {
		existing := []Appointment{appointmentAt(vaccine.ID, uuid.New(), day(2024, 1, 1), 1)}
		_, err := CheckCompatibility(Candidate{Vaccine: vaccine, SlotID: uuid.New(), Date: day(2024, 1, 22), DoseNumber: 2}, existing, nil)
		assert.NoError(t, err)
	})

	t.Run("non-sequential doses are not interval checked", func(t *testing.T) {
		existing := []Appointment{appointmentAt(vaccine.ID, uuid.New(), day(2024, 1, 1), 1)}
		_, err := CheckCompatibility(Candidate{Vaccine: vaccine, SlotID: uuid.New(), Date: day(2024, 1, 10), DoseNumber: 3}, existing, nil)
		assert.NoError(t, err)
	})
}

func TestCheckDoseInterval_CompletedHistory(t *testing.T) {
	vaccine := Vaccine{ID: uuid.New(), DosesRequired: 2, DaysBetweenDoses: 21}
	completed := []CompletedVaccination{
		{VaccineID: vaccine.ID, DoseNumber: 1, Date: day(2024, 1, 1)},
	}

	err := CheckDoseInterval(Candidate{Vaccine: vaccine, Date: day(2024, 1, 10), DoseNumber: 2}, completed)
	assert.ErrorIs(t, err, ErrDoseIntervalTooShort)

	err = CheckDoseInterval(Candidate{Vaccine: vaccine, Date: day(2024, 1, 22), DoseNumber: 2}, completed)
	assert.NoError(t, err)
}

func TestCheckCompatibility_SameDayAdvisory(t *testing.T) {
	vaccine := Vaccine{ID: uuid.New(), DosesRequired: 1}
	existing := []Appointment{appointmentAt(uuid.New(), uuid.New(), day(2024, 5, 2), 1)}

	warning, err := CheckCompatibility(Candidate{Vaccine: vaccine, SlotID: uuid.New(), Date: day(2024, 5, 2).Add(3 * time.Hour), DoseNumber: 1}, existing, nil)
	require.NoError(t, err)
	assert.Contains(t, warning, "2024-05-02")

	warning, err = CheckCompatibility(Candidate{Vaccine: vaccine, SlotID: uuid.New(), Date: day(2024, 5, 3), DoseNumber: 1}, existing, nil)
	require.NoError(t, err)
	assert.Empty(t, warning)
}
