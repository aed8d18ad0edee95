package slot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSlot(capacity int, startsAt time.Time) Slot {
	return Slot{
		ID:          uuid.New(),
		CenterID:    uuid.New(),
		Date:        startsAt.Truncate(24 * time.Hour),
		StartsAt:    startsAt,
		EndsAt:      startsAt.Add(time.Hour),
		MaxCapacity: capacity,
	}
}

func TestTryReserve_CapacityInvariant(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	alloc := NewMemoryAllocator()
	alloc.SetClock(func() time.Time { return now })

	const capacity = 5
	const attempts = 50

	s := testSlot(capacity, now.Add(24*time.Hour))
	alloc.Put(s)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := alloc.TryReserve(context.Background(), s.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, successes)

	got, err := alloc.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, got.CurrentBookings)
	assert.False(t, got.IsAvailable)
}

func TestTryReserve_Conditions(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	alloc := NewMemoryAllocator()
	alloc.SetClock(func() time.Time { return now })

	t.Run("unknown slot", func(t *testing.T) {
		err := alloc.TryReserve(context.Background(), uuid.New())
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})

	t.Run("slot already started", func(t *testing.T) {
		s := testSlot(3, now.Add(-time.Hour))
		alloc.Put(s)
		err := alloc.TryReserve(context.Background(), s.ID)
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	})

	t.Run("slot starting later today is reservable", func(t *testing.T) {
		s := testSlot(3, now.Add(2*time.Hour))
		alloc.Put(s)
		assert.NoError(t, alloc.TryReserve(context.Background(), s.ID))
	})
}

func TestRelease_ReopensSlot(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	alloc := NewMemoryAllocator()
	alloc.SetClock(func() time.Time { return now })

	s := testSlot(1, now.Add(24*time.Hour))
	alloc.Put(s)

	require.NoError(t, alloc.TryReserve(context.Background(), s.ID))
	assert.ErrorIs(t, alloc.TryReserve(context.Background(), s.ID), ErrSlotUnavailable)

	require.NoError(t, alloc.Release(context.Background(), s.ID))

	got, err := alloc.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentBookings)
	assert.True(t, got.IsAvailable)

	assert.NoError(t, alloc.TryReserve(context.Background(), s.ID))
}

func TestRelease_FloorsAtZero(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	alloc := NewMemoryAllocator()
	alloc.SetClock(func() time.Time { return now })

	s := testSlot(2, now.Add(24*time.Hour))
	alloc.Put(s)

	require.NoError(t, alloc.Release(context.Background(), s.ID))

	got, err := alloc.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentBookings)
}

func TestListAvailable(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	alloc := NewMemoryAllocator()
	alloc.SetClock(func() time.Time { return now })

	centerID := uuid.New()

	open := testSlot(2, now.Add(48*time.Hour))
	open.CenterID = centerID
	alloc.Put(open)

	full := testSlot(1, now.Add(49*time.Hour))
	full.CenterID = centerID
	alloc.Put(full)
	require.NoError(t, alloc.TryReserve(context.Background(), full.ID))

	past := testSlot(2, now.Add(-48*time.Hour))
	past.CenterID = centerID
	alloc.Put(past)

	got, err := alloc.ListAvailable(context.Background(), centerID, now.AddDate(0, 0, -7), now.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)
}
