// Package inventory tracks physical vaccine stock: per-center aggregate
// counts and per-lot remaining quantities with expiry dates. Reservations
// consume the soonest-to-expire eligible lot first.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrLotNotFound      = errors.New("vaccine lot not found")
	ErrStockNotFound    = errors.New("no stock record for center and vaccine")
	ErrOutOfStock       = errors.New("center has no stock of this vaccine")
	ErrNoStockAvailable = errors.New("no eligible vaccine lot available")
)

type LotStatus string

const (
	LotAvailable LotStatus = "available"
	LotExpired   LotStatus = "expired"
	LotDepleted  LotStatus = "depleted"
)

type Lot struct {
	ID                uuid.UUID
	VaccineID         uuid.UUID
	LotNumber         string
	Quantity          int
	RemainingQuantity int
	ExpiryDate        time.Time
	Status            LotStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// StatusOn derives the lot status from its counters and expiry as of a given
// date. The stored status is a cache of this and never authoritative.
func (l Lot) StatusOn(date time.Time) LotStatus {
	if l.ExpiryDate.Before(date) {
		return LotExpired
	}
	if l.RemainingQuantity == 0 {
		return LotDepleted
	}
	return LotAvailable
}

// Eligible reports whether the lot can supply a dose administered on the
// given date. Lots expiring on or before that date are excluded.
func (l Lot) Eligible(onDate time.Time) bool {
	return l.StatusOn(onDate) == LotAvailable && l.RemainingQuantity > 0 && l.ExpiryDate.After(onDate)
}

type CenterStock struct {
	CenterID      uuid.UUID
	VaccineID     uuid.UUID
	StockQuantity int
	UpdatedAt     time.Time
}

// Ledger is the only mutation path for stock counters and lot quantities.
// Reserve and Release must serialize per (center, vaccine) pair and per lot.
type Ledger interface {
	// SelectLotFIFO picks the eligible lot with the earliest expiry date,
	// breaking ties by smallest remaining quantity so near-exhausted lots
	// clear first. ErrNoStockAvailable when none qualify.
	SelectLotFIFO(ctx context.Context, vaccineID uuid.UUID, onDate time.Time) (uuid.UUID, error)

	// Reserve takes one dose: checks center stock, selects a lot FIFO and
	// decrements both the lot and the center counter in one atomic unit.
	Reserve(ctx context.Context, centerID, vaccineID uuid.UUID, onDate time.Time) (uuid.UUID, error)

	// Release returns one dose to the given lot and the center counter.
	// Safe to call once per prior successful Reserve.
	Release(ctx context.Context, centerID, vaccineID, lotID uuid.UUID) error

	// StockQuantity is the cheap existence check run before committing to
	// a slot reservation.
	StockQuantity(ctx context.Context, centerID, vaccineID uuid.UUID) (int, error)

	ListStockByCenter(ctx context.Context, centerID uuid.UUID) ([]CenterStock, error)

	// RefreshLotStatuses recomputes stored lot statuses against the given
	// date and returns how many rows changed. Run by the expiry worker.
	RefreshLotStatuses(ctx context.Context, onDate time.Time) (int, error)
}
