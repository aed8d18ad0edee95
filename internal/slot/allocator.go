// Package slot owns appointment-slot capacity accounting. All mutation of a
// slot's booking counter goes through an Allocator; nothing else may touch it.
package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound    = errors.New("slot not found")
	ErrSlotUnavailable = errors.New("slot is full or no longer reservable")
)

type Slot struct {
	ID              uuid.UUID
	CenterID        uuid.UUID
	Date            time.Time
	StartsAt        time.Time
	EndsAt          time.Time
	MaxCapacity     int
	CurrentBookings int
	IsAvailable     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Reservable reports whether a seat could be taken in this slot at the given
// instant: below capacity and not already started.
func (s Slot) Reservable(now time.Time) bool {
	return s.CurrentBookings < s.MaxCapacity && s.StartsAt.After(now)
}

// Allocator reserves and releases single seats in a slot. TryReserve must be
// linearizable per slot: with one seat left, exactly one of two concurrent
// calls succeeds.
type Allocator interface {
	// TryReserve takes one seat. ErrSlotUnavailable when full or in the
	// past, ErrSlotNotFound when the slot does not exist.
	TryReserve(ctx context.Context, slotID uuid.UUID) error

	// Release gives one seat back. Callers must release at most once per
	// successful reservation; double-release is not protected against.
	Release(ctx context.Context, slotID uuid.UUID) error

	GetByID(ctx context.Context, slotID uuid.UUID) (*Slot, error)

	// ListAvailable returns reservable slots for a center between two dates.
	ListAvailable(ctx context.Context, centerID uuid.UUID, from, to time.Time) ([]Slot, error)
}
