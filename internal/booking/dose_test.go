package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDose(t *testing.T) {
	vaccineID := uuid.New()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty history returns 1", func(t *testing.T) {
		assert.Equal(t, 1, NextDose(nil, nil))
	})

	t.Run("follows highest completed dose", func(t *testing.T) {
		completed := []CompletedVaccination{
			{VaccineID: vaccineID, DoseNumber: 1, Date: date},
			{VaccineID: vaccineID, DoseNumber: 2, Date: date.AddDate(0, 1, 0)},
		}
		assert.Equal(t, 3, NextDose(completed, nil))
	})

	t.Run("pending bookings count toward the sequence", func(t *testing.T) {
		completed := []CompletedVaccination{
			{VaccineID: vaccineID, DoseNumber: 1, Date: date},
		}
		pending := []Appointment{
			{DoseNumber: 2, Status: StatusConfirmed},
		}
		assert.Equal(t, 3, NextDose(completed, pending))
	})

	t.Run("strictly increasing as history accumulates", func(t *testing.T) {
		var completed []CompletedVaccination
		prev := 0
		for dose := 1; dose <= 5; dose++ {
			next := NextDose(completed, nil)
			require.Greater(t, next, prev)
			prev = next
			completed = append(completed, CompletedVaccination{VaccineID: vaccineID, DoseNumber: next, Date: date})
		}
	})
}

func TestValidateDose(t *testing.T) {
	vaccine := Vaccine{ID: uuid.New(), DosesRequired: 2, DaysBetweenDoses: 21}

	t.Run("dose within range passes", func(t *testing.T) {
		require.NoError(t, ValidateDose(vaccine, 2, nil))
	})

	t.Run("dose past regimen end rejected", func(t *testing.T) {
		err := ValidateDose(vaccine, 3, nil)
		assert.ErrorIs(t, err, ErrDoseOutOfRange)
	})

	t.Run("finished series rejected", func(t *testing.T) {
		completed := []CompletedVaccination{
			{VaccineID: vaccine.ID, DoseNumber: 2},
		}
		err := ValidateDose(vaccine, 2, completed)
		assert.ErrorIs(t, err, ErrSeriesComplete)
	})
}
