package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgAllocator implements Allocator on Postgres. The capacity check and the
// counter increment are a single conditional UPDATE, so the row lock makes
// concurrent reservations on the same slot serialize.
type PgAllocator struct {
	pool *pgxpool.Pool
}

func NewPgAllocator(pool *pgxpool.Pool) *PgAllocator {
	return &PgAllocator{pool: pool}
}

func (a *PgAllocator) TryReserve(ctx context.Context, slotID uuid.UUID) error {
	tag, err := a.pool.Exec(ctx, `
		UPDATE appointment_slots
		SET current_bookings = current_bookings + 1,
		    is_available = (current_bookings + 1 < max_capacity),
		    updated_at = now()
		WHERE id = $1
		  AND current_bookings < max_capacity
		  AND starts_at > now()
	`, slotID)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// No row updated: either the slot is gone or it failed a condition.
	var exists bool
	if err := a.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointment_slots WHERE id = $1)
	`, slotID).Scan(&exists); err != nil {
		return fmt.Errorf("check slot existence: %w", err)
	}
	if !exists {
		return ErrSlotNotFound
	}
	return ErrSlotUnavailable
}

func (a *PgAllocator) Release(ctx context.Context, slotID uuid.UUID) error {
	tag, err := a.pool.Exec(ctx, `
		UPDATE appointment_slots
		SET current_bookings = GREATEST(current_bookings - 1, 0),
		    is_available = (GREATEST(current_bookings - 1, 0) < max_capacity AND starts_at > now()),
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (a *PgAllocator) GetByID(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := a.pool.QueryRow(ctx, `
		SELECT id, center_id, slot_date, starts_at, ends_at, max_capacity, current_bookings, is_available, created_at, updated_at
		FROM appointment_slots
		WHERE id = $1
	`, slotID)
	return scanSlot(row)
}

func (a *PgAllocator) ListAvailable(ctx context.Context, centerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, center_id, slot_date, starts_at, ends_at, max_capacity, current_bookings, is_available, created_at, updated_at
		FROM appointment_slots
		WHERE center_id = $1
		  AND slot_date BETWEEN $2 AND $3
		  AND current_bookings < max_capacity
		  AND starts_at > now()
		ORDER BY starts_at
	`, centerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.CenterID,
		&s.Date,
		&s.StartsAt,
		&s.EndsAt,
		&s.MaxCapacity,
		&s.CurrentBookings,
		&s.IsAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}
