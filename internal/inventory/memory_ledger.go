package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type stockKey struct {
	centerID  uuid.UUID
	vaccineID uuid.UUID
}

// MemoryLedger is an in-memory Ledger guarded by a single mutex, for tests
// and local development.
type MemoryLedger struct {
	mu    sync.Mutex
	lots  map[uuid.UUID]*Lot
	stock map[stockKey]*CenterStock
	now   func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		lots:  make(map[uuid.UUID]*Lot),
		stock: make(map[stockKey]*CenterStock),
		now:   time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *MemoryLedger) PutLot(lot Lot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lot.Status = lot.StatusOn(l.now())
	copied := lot
	l.lots[lot.ID] = &copied
}

func (l *MemoryLedger) PutStock(centerID, vaccineID uuid.UUID, quantity int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[stockKey{centerID, vaccineID}] = &CenterStock{
		CenterID:      centerID,
		VaccineID:     vaccineID,
		StockQuantity: quantity,
	}
}

// GetLot returns a copy of the lot. Test helper.
func (l *MemoryLedger) GetLot(lotID uuid.UUID) (Lot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lot, ok := l.lots[lotID]
	if !ok {
		return Lot{}, false
	}
	return *lot, true
}

func (l *MemoryLedger) SelectLotFIFO(_ context.Context, vaccineID uuid.UUID, onDate time.Time) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selectLocked(vaccineID, onDate)
}

// selectLocked assumes l.mu is held.
func (l *MemoryLedger) selectLocked(vaccineID uuid.UUID, onDate time.Time) (uuid.UUID, error) {
	var eligible []*Lot
	for _, lot := range l.lots {
		if lot.VaccineID == vaccineID && lot.Eligible(onDate) {
			eligible = append(eligible, lot)
		}
	}
	if len(eligible) == 0 {
		return uuid.Nil, ErrNoStockAvailable
	}
	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].ExpiryDate.Equal(eligible[j].ExpiryDate) {
			return eligible[i].ExpiryDate.Before(eligible[j].ExpiryDate)
		}
		return eligible[i].RemainingQuantity < eligible[j].RemainingQuantity
	})
	return eligible[0].ID, nil
}

func (l *MemoryLedger) Reserve(_ context.Context, centerID, vaccineID uuid.UUID, onDate time.Time) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs, ok := l.stock[stockKey{centerID, vaccineID}]
	if !ok || cs.StockQuantity <= 0 {
		return uuid.Nil, ErrOutOfStock
	}

	lotID, err := l.selectLocked(vaccineID, onDate)
	if err != nil {
		return uuid.Nil, err
	}

	lot := l.lots[lotID]
	lot.RemainingQuantity--
	lot.Status = lot.StatusOn(l.now())
	cs.StockQuantity--
	cs.UpdatedAt = l.now()
	return lotID, nil
}

func (l *MemoryLedger) Release(_ context.Context, centerID, vaccineID, lotID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lot, ok := l.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	cs, ok := l.stock[stockKey{centerID, vaccineID}]
	if !ok {
		return ErrStockNotFound
	}

	if lot.RemainingQuantity < lot.Quantity {
		lot.RemainingQuantity++
	}
	lot.Status = lot.StatusOn(l.now())
	cs.StockQuantity++
	cs.UpdatedAt = l.now()
	return nil
}

func (l *MemoryLedger) StockQuantity(_ context.Context, centerID, vaccineID uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs, ok := l.stock[stockKey{centerID, vaccineID}]
	if !ok {
		return 0, ErrStockNotFound
	}
	return cs.StockQuantity, nil
}

func (l *MemoryLedger) ListStockByCenter(_ context.Context, centerID uuid.UUID) ([]CenterStock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []CenterStock
	for _, cs := range l.stock {
		if cs.CenterID == centerID {
			result = append(result, *cs)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].VaccineID.String() < result[j].VaccineID.String()
	})
	return result, nil
}

func (l *MemoryLedger) RefreshLotStatuses(_ context.Context, onDate time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := 0
	for _, lot := range l.lots {
		if derived := lot.StatusOn(onDate); derived != lot.Status {
			lot.Status = derived
			lot.UpdatedAt = l.now()
			changed++
		}
	}
	return changed, nil
}
