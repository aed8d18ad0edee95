package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLedger implements Ledger on Postgres. Reserve runs the stock decrement,
// the FIFO lot selection and the lot decrement inside one transaction; the
// row locks taken by the two UPDATEs serialize concurrent reservations on
// the same (center, vaccine) pair and lot.
type PgLedger struct {
	pool *pgxpool.Pool
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

func (l *PgLedger) SelectLotFIFO(ctx context.Context, vaccineID uuid.UUID, onDate time.Time) (uuid.UUID, error) {
	var lotID uuid.UUID
	err := l.pool.QueryRow(ctx, `
		SELECT id
		FROM vaccine_lots
		WHERE vaccine_id = $1
		  AND remaining_quantity > 0
		  AND expiry_date > $2
		ORDER BY expiry_date ASC, remaining_quantity ASC
		LIMIT 1
	`, vaccineID, onDate).Scan(&lotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNoStockAvailable
		}
		return uuid.Nil, fmt.Errorf("select lot: %w", err)
	}
	return lotID, nil
}

func (l *PgLedger) Reserve(ctx context.Context, centerID, vaccineID uuid.UUID, onDate time.Time) (uuid.UUID, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE center_vaccine_stock
		SET stock_quantity = stock_quantity - 1,
		    updated_at = now()
		WHERE center_id = $1
		  AND vaccine_id = $2
		  AND stock_quantity > 0
	`, centerID, vaccineID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decrement center stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, ErrOutOfStock
	}

	var lotID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM vaccine_lots
		WHERE vaccine_id = $1
		  AND remaining_quantity > 0
		  AND expiry_date > $2
		ORDER BY expiry_date ASC, remaining_quantity ASC
		LIMIT 1
		FOR UPDATE
	`, vaccineID, onDate).Scan(&lotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNoStockAvailable
		}
		return uuid.Nil, fmt.Errorf("select lot for update: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE vaccine_lots
		SET remaining_quantity = remaining_quantity - 1,
		    status = CASE WHEN remaining_quantity - 1 = 0 THEN 'depleted' ELSE status END,
		    updated_at = now()
		WHERE id = $1
	`, lotID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decrement lot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit reserve tx: %w", err)
	}
	return lotID, nil
}

func (l *PgLedger) Release(ctx context.Context, centerID, vaccineID, lotID uuid.UUID) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE vaccine_lots
		SET remaining_quantity = remaining_quantity + 1,
		    status = CASE WHEN status = 'depleted' THEN 'available' ELSE status END,
		    updated_at = now()
		WHERE id = $1
		  AND remaining_quantity < quantity
	`, lotID)
	if err != nil {
		return fmt.Errorf("increment lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}

	tag, err = tx.Exec(ctx, `
		UPDATE center_vaccine_stock
		SET stock_quantity = stock_quantity + 1,
		    updated_at = now()
		WHERE center_id = $1
		  AND vaccine_id = $2
	`, centerID, vaccineID)
	if err != nil {
		return fmt.Errorf("increment center stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}

	return tx.Commit(ctx)
}

func (l *PgLedger) StockQuantity(ctx context.Context, centerID, vaccineID uuid.UUID) (int, error) {
	var qty int
	err := l.pool.QueryRow(ctx, `
		SELECT stock_quantity
		FROM center_vaccine_stock
		WHERE center_id = $1
		  AND vaccine_id = $2
	`, centerID, vaccineID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrStockNotFound
		}
		return 0, fmt.Errorf("get stock quantity: %w", err)
	}
	return qty, nil
}

func (l *PgLedger) ListStockByCenter(ctx context.Context, centerID uuid.UUID) ([]CenterStock, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT center_id, vaccine_id, stock_quantity, updated_at
		FROM center_vaccine_stock
		WHERE center_id = $1
		ORDER BY vaccine_id
	`, centerID)
	if err != nil {
		return nil, fmt.Errorf("list center stock: %w", err)
	}
	defer rows.Close()

	var result []CenterStock
	for rows.Next() {
		var cs CenterStock
		if err := rows.Scan(&cs.CenterID, &cs.VaccineID, &cs.StockQuantity, &cs.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *PgLedger) RefreshLotStatuses(ctx context.Context, onDate time.Time) (int, error) {
	tag, err := l.pool.Exec(ctx, `
		UPDATE vaccine_lots
		SET status = CASE
		        WHEN expiry_date < $1 THEN 'expired'
		        WHEN remaining_quantity = 0 THEN 'depleted'
		        ELSE 'available'
		    END,
		    updated_at = now()
		WHERE status <> CASE
		        WHEN expiry_date < $1 THEN 'expired'
		        WHEN remaining_quantity = 0 THEN 'depleted'
		        ELSE 'available'
		    END
	`, onDate)
	if err != nil {
		return 0, fmt.Errorf("refresh lot statuses: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
