package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `
	id, booking_code,
	subject_kind, user_id, dependent_id, guest_name, guest_phone, subject_key,
	vaccine_id, center_id, slot_id, scheduled_at, dose_number, status,
	reserved_lot_id, payment_id, notes, created_at, updated_at`

func scanVaccine(row pgx.Row) (*Vaccine, error) {
	var v Vaccine
	err := row.Scan(
		&v.ID,
		&v.Name,
		&v.DosesRequired,
		&v.DaysBetweenDoses,
		&v.PriceCents,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVaccineNotFound
		}
		return nil, err
	}
	return &v, nil
}

func scanCenter(row pgx.Row) (*Center, error) {
	var c Center
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Address,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCenterNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		kind       string
		userID     *uuid.UUID
		depID      *uuid.UUID
		guestName  *string
		guestPhone *string
		subjectKey string
	)

	err := row.Scan(
		&a.ID,
		&a.BookingCode,
		&kind,
		&userID,
		&depID,
		&guestName,
		&guestPhone,
		&subjectKey,
		&a.VaccineID,
		&a.CenterID,
		&a.SlotID,
		&a.ScheduledAt,
		&a.DoseNumber,
		&a.Status,
		&a.ReservedLotID,
		&a.PaymentID,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Subject = Subject{Kind: SubjectKind(kind)}
	if userID != nil {
		a.Subject.UserID = *userID
	}
	if depID != nil {
		a.Subject.DependentID = *depID
	}
	if a.Subject.Kind == SubjectGuest {
		profile := GuestProfile{}
		if guestName != nil {
			profile.FullName = *guestName
		}
		if guestPhone != nil {
			profile.Phone = *guestPhone
		}
		a.Subject.Guest = &profile
	}
	return &a, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.AmountCents,
		&p.Method,
		&p.Status,
		&p.CancellationFeeCents,
		&p.FeeSettledAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Interface methods

func (r *PgRepository) GetVaccineByID(ctx context.Context, id uuid.UUID) (*Vaccine, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, doses_required, days_between_doses, price_cents, created_at, updated_at
		FROM vaccines
		WHERE id = $1
	`, id)
	return scanVaccine(row)
}

func (r *PgRepository) GetCenterByID(ctx context.Context, id uuid.UUID) (*Center, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, address, created_at, updated_at
		FROM centers
		WHERE id = $1
	`, id)
	return scanCenter(row)
}

func (r *PgRepository) ListCompletedVaccinations(ctx context.Context, subjectKey string, vaccineID uuid.UUID) ([]CompletedVaccination, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subject_key, vaccine_id, dose_number, vaccinated_on
		FROM completed_vaccinations
		WHERE subject_key = $1
		  AND vaccine_id = $2
		ORDER BY dose_number
	`, subjectKey, vaccineID)
	if err != nil {
		return nil, fmt.Errorf("list completed vaccinations: %w", err)
	}
	defer rows.Close()

	var result []CompletedVaccination
	for rows.Next() {
		var cv CompletedVaccination
		if err := rows.Scan(&cv.ID, &cv.SubjectKey, &cv.VaccineID, &cv.DoseNumber, &cv.Date); err != nil {
			return nil, err
		}
		result = append(result, cv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListActiveAppointments(ctx context.Context, subjectKey string, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE subject_key = $1
		  AND status IN ('pending', 'confirmed')
		  AND scheduled_at BETWEEN $2 AND $3
	`, subjectKey, from, to)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListActiveAppointmentsByVaccine(ctx context.Context, subjectKey string, vaccineID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE subject_key = $1
		  AND vaccine_id = $2
		  AND status IN ('pending', 'confirmed')
	`, subjectKey, vaccineID)
	if err != nil {
		return nil, fmt.Errorf("list active appointments by vaccine: %w", err)
	}
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListIncompatibilities(ctx context.Context, vaccineID uuid.UUID) ([]VaccineIncompatibility, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT vaccine_a_id, vaccine_b_id, min_days_between
		FROM vaccine_incompatibilities
		WHERE vaccine_a_id = $1
		   OR vaccine_b_id = $1
	`, vaccineID)
	if err != nil {
		return nil, fmt.Errorf("list incompatibilities: %w", err)
	}
	defer rows.Close()

	var result []VaccineIncompatibility
	for rows.Next() {
		var vi VaccineIncompatibility
		if err := rows.Scan(&vi.VaccineAID, &vi.VaccineBID, &vi.MinDaysBetween); err != nil {
			return nil, err
		}
		result = append(result, vi)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	var userID, depID *uuid.UUID
	var guestName, guestPhone *string
	switch appt.Subject.Kind {
	case SubjectSelf:
		userID = &appt.Subject.UserID
	case SubjectDependent:
		userID = &appt.Subject.UserID
		depID = &appt.Subject.DependentID
	case SubjectGuest:
		if appt.Subject.Guest != nil {
			guestName = &appt.Subject.Guest.FullName
			guestPhone = &appt.Subject.Guest.Phone
		}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, booking_code,
			subject_kind, user_id, dependent_id, guest_name, guest_phone, subject_key,
			vaccine_id, center_id, slot_id, scheduled_at, dose_number, status,
			reserved_lot_id, payment_id, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.BookingCode,
		string(appt.Subject.Kind), userID, depID, guestName, guestPhone, appt.Subject.Key(),
		appt.VaccineID, appt.CenterID, appt.SlotID, appt.ScheduledAt, appt.DoseNumber, appt.Status,
		appt.ReservedLotID, appt.PaymentID, appt.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	*appt = *created
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) SetReservedLot(ctx context.Context, apptID uuid.UUID, lotID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reserved_lot_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, apptID, lotID)
	if err != nil {
		return fmt.Errorf("set reserved lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) SetPaymentRef(ctx context.Context, apptID, paymentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET payment_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, apptID, paymentID)
	if err != nil {
		return fmt.Errorf("set payment ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) CreatePayment(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, amount_cents, method, status, cancellation_fee_cents, fee_settled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NULL, now(), now())
		RETURNING id, appointment_id, amount_cents, method, status, cancellation_fee_cents, fee_settled_at, created_at, updated_at
	`, p.ID, p.AppointmentID, p.AmountCents, p.Method, p.Status)

	created, err := scanPayment(row)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	*p = *created
	return nil
}

func (r *PgRepository) GetPaymentByAppointment(ctx context.Context, apptID uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, amount_cents, method, status, cancellation_fee_cents, fee_settled_at, created_at, updated_at
		FROM payments
		WHERE appointment_id = $1
	`, apptID)
	return scanPayment(row)
}

func (r *PgRepository) RecordCancellationFee(ctx context.Context, paymentID uuid.UUID, feeCents int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET cancellation_fee_cents = $2,
		    fee_settled_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, paymentID, feeCents)
	if err != nil {
		return fmt.Errorf("record cancellation fee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PgRepository) OutstandingFees(ctx context.Context, subjectKey string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(p.cancellation_fee_cents), 0)
		FROM payments p
		JOIN appointments a ON a.id = p.appointment_id
		WHERE a.subject_key = $1
		  AND p.cancellation_fee_cents > 0
		  AND p.fee_settled_at IS NULL
	`, subjectKey).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum outstanding fees: %w", err)
	}
	return total, nil
}

func (r *PgRepository) FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND slot_id IS NULL
		  AND created_at < $1
	`, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("find stale pending appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
