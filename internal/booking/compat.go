package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CompatibilityWindowDays bounds how far around the candidate date existing
// appointments are considered. Incompatibility intervals in practice are far
// shorter than this.
const CompatibilityWindowDays = 60

// Candidate describes the booking being validated.
type Candidate struct {
	Vaccine    Vaccine
	SlotID     uuid.UUID
	Date       time.Time
	DoseNumber int
}

// CheckCompatibility runs the hard rules for a candidate booking against the
// subject's existing pending/confirmed appointments inside the window.
// incompat maps the id of the other vaccine in a registered incompatibility
// pair to the minimum days required between the two; callers preload it once
// per candidate vaccine instead of querying per comparison.
//
// The returned warning is advisory only: it is non-empty when the subject
// already has another appointment on the same calendar day, which callers may
// surface without blocking the booking.
func CheckCompatibility(c Candidate, existing []Appointment, incompat map[uuid.UUID]int) (warning string, err error) {
	for _, appt := range existing {
		if appt.VaccineID == nil || appt.ScheduledAt == nil {
			continue
		}
		sameSlot := appt.SlotID != nil && *appt.SlotID == c.SlotID
		sameVaccine := *appt.VaccineID == c.Vaccine.ID

		if sameSlot && sameVaccine {
			return "", ErrDuplicateVaccineInSlot
		}

		if !sameVaccine {
			minDays, incompatible := incompat[*appt.VaccineID]
			if incompatible {
				if sameSlot {
					// Same slot means zero elapsed time; never allowed.
					return "", &IncompatibilityError{
						OtherVaccineID: appt.VaccineID.String(),
						MinDaysBetween: minDays,
						ActualDays:     0,
					}
				}
				if days := daysBetween(*appt.ScheduledAt, c.Date); days < minDays {
					return "", &IncompatibilityError{
						OtherVaccineID: appt.VaccineID.String(),
						MinDaysBetween: minDays,
						ActualDays:     days,
					}
				}
			}
		}

		if sameVaccine && c.Vaccine.DaysBetweenDoses > 0 && sequentialDoses(appt.DoseNumber, c.DoseNumber) {
			if days := daysBetween(*appt.ScheduledAt, c.Date); days < c.Vaccine.DaysBetweenDoses {
				return "", &DoseIntervalError{
					RequiredDays: c.Vaccine.DaysBetweenDoses,
					ActualDays:   days,
				}
			}
		}

		if warning == "" && !sameSlot && sameDay(*appt.ScheduledAt, c.Date) {
			warning = fmt.Sprintf("subject already has an appointment on %s", c.Date.Format("2006-01-02"))
		}
	}

	return warning, nil
}

// CheckDoseInterval validates the candidate against the subject's completed
// vaccination history for the same vaccine. Sequential doses closer together
// than the vaccine's interval are rejected.
func CheckDoseInterval(c Candidate, completed []CompletedVaccination) error {
	if c.Vaccine.DaysBetweenDoses <= 0 {
		return nil
	}
	for _, rec := range completed {
		if rec.VaccineID != c.Vaccine.ID || !sequentialDoses(rec.DoseNumber, c.DoseNumber) {
			continue
		}
		if days := daysBetween(rec.Date, c.Date); days < c.Vaccine.DaysBetweenDoses {
			return &DoseIntervalError{
				RequiredDays: c.Vaccine.DaysBetweenDoses,
				ActualDays:   days,
			}
		}
	}
	return nil
}

// SymmetricIncompatibilityMap flattens incompatibility pairs into a lookup
// keyed by the other vaccine's id, honoring both orderings of each pair.
func SymmetricIncompatibilityMap(vaccineID uuid.UUID, pairs []VaccineIncompatibility) map[uuid.UUID]int {
	m := make(map[uuid.UUID]int, len(pairs))
	for _, p := range pairs {
		switch vaccineID {
		case p.VaccineAID:
			m[p.VaccineBID] = p.MinDaysBetween
		case p.VaccineBID:
			m[p.VaccineAID] = p.MinDaysBetween
		}
	}
	return m
}

func sequentialDoses(a, b int) bool {
	d := a - b
	return d == 1 || d == -1
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween returns the absolute number of whole calendar days between two
// instants, ignoring the time-of-day component.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(db.Sub(da).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
