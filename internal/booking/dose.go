package booking

// NextDose computes the dose number for a new booking: one past the highest
// dose already completed or pending for this person and vaccine. Always >= 1.
func NextDose(completed []CompletedVaccination, pending []Appointment) int {
	highest := 0
	for _, rec := range completed {
		if rec.DoseNumber > highest {
			highest = rec.DoseNumber
		}
	}
	for _, appt := range pending {
		if appt.DoseNumber > highest {
			highest = appt.DoseNumber
		}
	}
	return highest + 1
}

// ValidateDose rejects dose numbers past the end of the vaccine's regimen
// and bookings for a series the person has already finished.
func ValidateDose(vaccine Vaccine, doseNumber int, completed []CompletedVaccination) error {
	if doseNumber > vaccine.DosesRequired {
		return ErrDoseOutOfRange
	}
	for _, rec := range completed {
		if rec.DoseNumber >= vaccine.DosesRequired {
			return ErrSeriesComplete
		}
	}
	return nil
}
