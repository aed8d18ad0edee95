package slot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAllocator is an in-memory Allocator guarded by a single mutex. It
// backs unit tests and local development without Postgres.
type MemoryAllocator struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*Slot
	now   func() time.Time
}

func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{
		slots: make(map[uuid.UUID]*Slot),
		now:   time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (a *MemoryAllocator) SetClock(now func() time.Time) {
	a.now = now
}

func (a *MemoryAllocator) Put(s Slot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s.IsAvailable = s.Reservable(a.now())
	copied := s
	a.slots[s.ID] = &copied
}

func (a *MemoryAllocator) TryReserve(_ context.Context, slotID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	if !s.Reservable(a.now()) {
		return ErrSlotUnavailable
	}
	s.CurrentBookings++
	s.IsAvailable = s.Reservable(a.now())
	s.UpdatedAt = a.now()
	return nil
}

func (a *MemoryAllocator) Release(_ context.Context, slotID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	if s.CurrentBookings > 0 {
		s.CurrentBookings--
	}
	s.IsAvailable = s.Reservable(a.now())
	s.UpdatedAt = a.now()
	return nil
}

func (a *MemoryAllocator) GetByID(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	copied := *s
	return &copied, nil
}

func (a *MemoryAllocator) ListAvailable(_ context.Context, centerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var result []Slot
	for _, s := range a.slots {
		if s.CenterID != centerID {
			continue
		}
		if s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		if !s.Reservable(a.now()) {
			continue
		}
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartsAt.Before(result[j].StartsAt)
	})
	return result, nil
}
