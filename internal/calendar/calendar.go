// Package calendar holds the fixed business calendar: working hours,
// the midday break, slot granularity and the minimum booking lead time.
// Everything here is a pure function over wall-clock values.
package calendar

import (
	"fmt"
	"time"
)

// SlotStep is the fixed booking granularity.
const SlotStep = 30 * time.Minute

const slotStepMinutes = 30

// Business day bounds, in minutes since midnight.
const (
	morningStart   = 8 * 60  // 08:00
	morningEnd     = 12 * 60 // 12:00 (exclusive, break starts)
	afternoonStart = 13 * 60 // 13:00
	afternoonLast  = 16*60 + 30
)

// TimeOfDay is a wall-clock time within a day, in minutes since midnight.
// There is no timezone handling anywhere in the engine; all values live in
// a single implicit local zone.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Minutes returns the raw minutes-since-midnight value, used by the
// persistence layer.
func (t TimeOfDay) Minutes() int { return int(t) }

// IsSlotAligned reports whether t sits on a 30-minute boundary.
func IsSlotAligned(t TimeOfDay) bool {
	return int(t)%slotStepMinutes == 0
}

// IsBusinessSlot reports whether t is a bookable instant: slot-aligned and
// inside 08:00-12:00 or 13:00-16:30. The 12:00-13:00 break is excluded.
func IsBusinessSlot(t TimeOfDay) bool {
	if !IsSlotAligned(t) {
		return false
	}
	m := int(t)
	if m >= morningStart && m < morningEnd {
		return true
	}
	return m >= afternoonStart && m <= afternoonLast
}

// DefaultDaySlots returns every bookable instant of a standard day,
// ascending: 8 morning slots (08:00..11:30) and 8 afternoon slots
// (13:00..16:30).
func DefaultDaySlots() []TimeOfDay {
	slots := make([]TimeOfDay, 0, 16)
	for m := morningStart; m < morningEnd; m += slotStepMinutes {
		slots = append(slots, TimeOfDay(m))
	}
	for m := afternoonStart; m <= afternoonLast; m += slotStepMinutes {
		slots = append(slots, TimeOfDay(m))
	}
	return slots
}

// MinimumLeadTime is the smallest interval allowed between "now" and a
// booking's start instant.
func MinimumLeadTime() time.Duration {
	return 30 * time.Minute
}

// DateOnly truncates t to midnight, keeping its location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// IsPastDate reports whether date falls strictly before now's calendar day.
// A past date is rejected outright, even when its time-of-day would still
// clear the lead-time check.
func IsPastDate(date, now time.Time) bool {
	return DateOnly(date).Before(DateOnly(now))
}

// SlotInstant combines a calendar date with a time-of-day into a single
// instant, in the date's location.
func SlotInstant(date time.Time, t TimeOfDay) time.Time {
	return DateOnly(date).Add(time.Duration(t) * time.Minute)
}

// MeetsLeadTime reports whether the (date, slot) instant is strictly later
// than now plus the minimum lead time.
func MeetsLeadTime(date time.Time, slot TimeOfDay, now time.Time) bool {
	return SlotInstant(date, slot).After(now.Add(MinimumLeadTime()))
}
