// Package availability holds provider-declared open windows and derives
// the bookable slots they contain.
package availability

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/scheduling/internal/calendar"
)

var (
	ErrInvalidWindow  = errors.New("invalid availability window")
	ErrWindowNotFound = errors.New("availability window not found")
)

// Window is a contiguous interval on one date during which a provider
// accepts bookings. Multiple windows per provider/date are permitted;
// overlap is reconciled by slot-level deduplication, never by merging.
type Window struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Date       time.Time
	Start      calendar.TimeOfDay
	End        calendar.TimeOfDay
	CreatedAt  time.Time
}

// Store contains all window persistence needed by the engine.
type Store interface {
	// Declare records a window. Declaring an exact duplicate is a no-op:
	// the existing window is returned with created=false.
	Declare(ctx context.Context, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) (*Window, bool, error)

	// Remove deletes the window matching (providerID, date, start, end)
	// exactly, or fails with ErrWindowNotFound.
	Remove(ctx context.Context, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) error

	WindowsFor(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Window, error)
}

// ValidateWindow applies the declaration rules: bounds slot-aligned,
// end after start, date not in the past.
func ValidateWindow(date time.Time, start, end calendar.TimeOfDay, now time.Time) error {
	if end <= start {
		return ErrInvalidWindow
	}
	if !calendar.IsSlotAligned(start) || !calendar.IsSlotAligned(end) {
		return ErrInvalidWindow
	}
	if calendar.IsPastDate(date, now) {
		return ErrInvalidWindow
	}
	return nil
}

// SliceWindow expands one window into 30-minute steps: the window start,
// then every step strictly before the window end. An unaligned window
// yields only its fully-contained slots.
func SliceWindow(w Window) []calendar.TimeOfDay {
	var slots []calendar.TimeOfDay
	step := calendar.TimeOfDay(calendar.SlotStep / time.Minute)
	for cur := w.Start; cur < w.End; cur += step {
		slots = append(slots, cur)
	}
	return slots
}

// DerivedSlots computes the bookable instants for a provider on a date:
// the deduplicated, ascending union of every declared window's slots. A
// provider with no declared windows falls back to the standard business
// day: absence of configuration means standard hours, not fully booked.
func DerivedSlots(ctx context.Context, s Store, providerID uuid.UUID, date time.Time) ([]calendar.TimeOfDay, error) {
	windows, err := s.WindowsFor(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return calendar.DefaultDaySlots(), nil
	}

	seen := make(map[calendar.TimeOfDay]struct{})
	var slots []calendar.TimeOfDay
	for _, w := range windows {
		for _, t := range SliceWindow(w) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			slots = append(slots, t)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots, nil
}
