package calendar

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tod
}

func TestIsBusinessSlot(t *testing.T) {
	cases := []struct {
		time string
		want bool
	}{
		{"08:00", true},
		{"11:30", true},
		{"13:00", true},
		{"16:30", true},
		{"07:30", false}, // before opening
		{"12:00", false}, // break
		{"12:30", false}, // break
		{"17:00", false}, // after last slot
		{"09:15", false}, // not aligned
		{"16:45", false},
		{"00:00", false},
	}

	for _, tc := range cases {
		t.Run(tc.time, func(t *testing.T) {
			got := IsBusinessSlot(mustParse(t, tc.time))
			if got != tc.want {
				t.Errorf("IsBusinessSlot(%s) = %v, want %v", tc.time, got, tc.want)
			}
		})
	}
}

func TestIsSlotAligned(t *testing.T) {
	if !IsSlotAligned(mustParse(t, "09:30")) {
		t.Error("09:30 should be slot-aligned")
	}
	if IsSlotAligned(mustParse(t, "09:10")) {
		t.Error("09:10 should not be slot-aligned")
	}
}

func TestDefaultDaySlots(t *testing.T) {
	slots := DefaultDaySlots()

	if len(slots) != 16 {
		t.Fatalf("expected 16 default slots, got %d", len(slots))
	}
	if slots[0].String() != "08:00" {
		t.Errorf("first slot = %s, want 08:00", slots[0])
	}
	if slots[7].String() != "11:30" {
		t.Errorf("last morning slot = %s, want 11:30", slots[7])
	}
	if slots[8].String() != "13:00" {
		t.Errorf("first afternoon slot = %s, want 13:00", slots[8])
	}
	if slots[15].String() != "16:30" {
		t.Errorf("last slot = %s, want 16:30", slots[15])
	}

	for i := 1; i < len(slots); i++ {
		if slots[i] <= slots[i-1] {
			t.Fatalf("slots not strictly ascending at %d: %s <= %s", i, slots[i], slots[i-1])
		}
		if !IsBusinessSlot(slots[i]) {
			t.Errorf("default slot %s is not a business slot", slots[i])
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Error("expected error for 25:00")
	}
	if _, err := ParseTimeOfDay("banana"); err == nil {
		t.Error("expected error for junk input")
	}
	tod, err := ParseTimeOfDay("16:30")
	if err != nil {
		t.Fatalf("parse 16:30: %v", err)
	}
	if tod.Minutes() != 16*60+30 {
		t.Errorf("16:30 = %d minutes, want %d", tod.Minutes(), 16*60+30)
	}
}

func TestIsPastDate(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.Local)

	if !IsPastDate(now.AddDate(0, 0, -1), now) {
		t.Error("yesterday should be a past date")
	}
	if IsPastDate(now, now) {
		t.Error("today is not a past date, regardless of time-of-day")
	}
	if IsPastDate(now.AddDate(0, 0, 1), now) {
		t.Error("tomorrow is not a past date")
	}
}

func TestMeetsLeadTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	today := DateOnly(now)

	cases := []struct {
		name string
		slot string
		want bool
	}{
		{"same instant", "09:00", false},
		{"exactly at lead time boundary", "09:30", false}, // must be strictly later
		{"one step past the boundary", "10:00", true},
		{"earlier today", "08:30", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MeetsLeadTime(today, mustParse(t, tc.slot), now)
			if got != tc.want {
				t.Errorf("MeetsLeadTime(today %s, now 09:00) = %v, want %v", tc.slot, got, tc.want)
			}
		})
	}

	tomorrow := today.AddDate(0, 0, 1)
	if !MeetsLeadTime(tomorrow, mustParse(t, "08:00"), now) {
		t.Error("tomorrow 08:00 should clear the lead time")
	}
}
