package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/scheduling/internal/calendar"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)

func newTestStore() *MemoryStore {
	return NewMemoryStoreAt(func() time.Time { return testNow })
}

func tod(t *testing.T, s string) calendar.TimeOfDay {
	t.Helper()
	v, err := calendar.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func slotStrings(slots []calendar.TimeOfDay) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}

func TestDeclareValidation(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	provider := uuid.New()
	date := testNow.AddDate(0, 0, 7)

	cases := []struct {
		name       string
		date       time.Time
		start, end string
	}{
		{"end equals start", date, "09:00", "09:00"},
		{"end before start", date, "10:00", "09:00"},
		{"unaligned start", date, "09:15", "10:00"},
		{"unaligned end", date, "09:00", "10:10"},
		{"past date", testNow.AddDate(0, 0, -1), "09:00", "10:00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := store.Declare(ctx, provider, tc.date, tod(t, tc.start), tod(t, tc.end))
			if !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("expected ErrInvalidWindow, got %v", err)
			}
		})
	}
}

func TestDeclareIdempotent(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	provider := uuid.New()
	date := testNow.AddDate(0, 0, 7)

	w1, created, err := store.Declare(ctx, provider, date, tod(t, "09:00"), tod(t, "10:00"))
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	if !created {
		t.Fatal("first declaration should create")
	}

	w2, created, err := store.Declare(ctx, provider, date, tod(t, "09:00"), tod(t, "10:00"))
	if err != nil {
		t.Fatalf("duplicate declare: %v", err)
	}
	if created {
		t.Error("duplicate declaration must be a no-op, not a second window")
	}
	if w2.ID != w1.ID {
		t.Error("duplicate declaration should return the existing window")
	}

	windows, err := store.WindowsFor(ctx, provider, date)
	if err != nil {
		t.Fatalf("windows for: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window after duplicate declare, got %d", len(windows))
	}
}

func TestRemoveRequiresExactMatch(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	provider := uuid.New()
	date := testNow.AddDate(0, 0, 7)

	if _, _, err := store.Declare(ctx, provider, date, tod(t, "09:00"), tod(t, "10:00")); err != nil {
		t.Fatalf("declare: %v", err)
	}

	err := store.Remove(ctx, provider, date, tod(t, "09:00"), tod(t, "10:30"))
	if !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("inexact remove: expected ErrWindowNotFound, got %v", err)
	}

	if err := store.Remove(ctx, provider, date, tod(t, "09:00"), tod(t, "10:00")); err != nil {
		t.Errorf("exact remove: %v", err)
	}

	err = store.Remove(ctx, provider, date, tod(t, "09:00"), tod(t, "10:00"))
	if !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("second remove: expected ErrWindowNotFound, got %v", err)
	}
}

func TestDerivedSlotsFromWindow(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	provider := uuid.New()
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local)

	if _, _, err := store.Declare(ctx, provider, date, tod(t, "09:00"), tod(t, "10:00")); err != nil {
		t.Fatalf("declare: %v", err)
	}

	slots, err := DerivedSlots(ctx, store, provider, date)
	if err != nil {
		t.Fatalf("derived slots: %v", err)
	}

	got := slotStrings(slots)
	want := []string{"09:00", "09:30"}
	if len(got) != len(want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slots = %v, want %v", got, want)
		}
	}
}

func TestDerivedSlotsOverlapDeduplicated(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	provider := uuid.New()
	date := testNow.AddDate(0, 0, 7)

	for _, w := range [][2]string{{"09:00", "10:30"}, {"10:00", "11:00"}} {
		if _, _, err := store.Declare(ctx, provider, date, tod(t, w[0]), tod(t, w[1])); err != nil {
			t.Fatalf("declare %v: %v", w, err)
		}
	}

	slots, err := DerivedSlots(ctx, store, provider, date)
	if err != nil {
		t.Fatalf("derived slots: %v", err)
	}

	got := slotStrings(slots)
	want := []string{"09:00", "09:30", "10:00", "10:30"}
	if len(got) != len(want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slots = %v, want %v", got, want)
		}
	}
}

func TestDerivedSlotsDefaultFallback(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	slots, err := DerivedSlots(ctx, store, uuid.New(), testNow.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("derived slots: %v", err)
	}

	def := calendar.DefaultDaySlots()
	if len(slots) != len(def) {
		t.Fatalf("expected %d default slots, got %d", len(def), len(slots))
	}
	for i := range def {
		if slots[i] != def[i] {
			t.Fatalf("slot %d = %s, want %s", i, slots[i], def[i])
		}
	}
}

func TestSliceWindowUnalignedEnd(t *testing.T) {
	// A window whose end is off the 30-minute grid yields only the
	// fully-contained steps from its start.
	w := Window{Start: tod(t, "09:00"), End: calendar.TimeOfDay(9*60 + 45)}
	got := slotStrings(SliceWindow(w))
	want := []string{"09:00", "09:30"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("slots = %v, want %v", got, want)
	}
}
