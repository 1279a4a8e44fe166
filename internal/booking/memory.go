package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/scheduling/internal/calendar"
)

// MemoryLedger is an in-process Ledger for tests and single-node use.
// Its mutex serializes every check-then-mutate, which is what makes the
// slot invariant hold under concurrent callers.
type MemoryLedger struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	now          func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return NewMemoryLedgerAt(time.Now)
}

func NewMemoryLedgerAt(now func() time.Time) *MemoryLedger {
	return &MemoryLedger{
		appointments: make(map[uuid.UUID]*Appointment),
		now:          now,
	}
}

func sameDate(a, b time.Time) bool {
	return calendar.DateOnly(a).Equal(calendar.DateOnly(b))
}

// slotTaken reports whether a confirmed appointment other than exclude
// occupies (providerID, date, slot). Callers hold mu.
func (l *MemoryLedger) slotTaken(providerID uuid.UUID, date time.Time, slot calendar.TimeOfDay, exclude uuid.UUID) bool {
	for _, a := range l.appointments {
		if a.ID == exclude {
			continue
		}
		if a.Status == StatusConfirmed && a.ProviderID == providerID && sameDate(a.Date, date) && a.Slot == slot {
			return true
		}
	}
	return false
}

func (l *MemoryLedger) ActiveSlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]calendar.TimeOfDay, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var slots []calendar.TimeOfDay
	for _, a := range l.appointments {
		if a.Status == StatusConfirmed && a.ProviderID == providerID && sameDate(a.Date, date) {
			slots = append(slots, a.Slot)
		}
	}
	return slots, nil
}

func (l *MemoryLedger) Insert(ctx context.Context, appt Appointment) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.slotTaken(appt.ProviderID, appt.Date, appt.Slot, uuid.Nil) {
		return nil, ErrSlotConflict
	}

	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.Date = calendar.DateOnly(appt.Date)
	appt.Status = StatusConfirmed
	appt.CreatedAt = l.now()
	appt.UpdatedAt = appt.CreatedAt

	l.appointments[appt.ID] = &appt
	out := appt
	return &out, nil
}

func (l *MemoryLedger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (l *MemoryLedger) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	a.Status = StatusCancelled
	a.UpdatedAt = l.now()
	out := *a
	return &out, nil
}

func (l *MemoryLedger) Reactivate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusCancelled {
		return nil, ErrNotCancelled
	}
	if l.slotTaken(a.ProviderID, a.Date, a.Slot, a.ID) {
		return nil, ErrSlotConflict
	}

	a.Status = StatusConfirmed
	a.UpdatedAt = l.now()
	out := *a
	return &out, nil
}

func (l *MemoryLedger) Reschedule(ctx context.Context, id uuid.UUID, newProviderID uuid.UUID, newDate time.Time, newSlot calendar.TimeOfDay) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	// The appointment's own slot counts as vacated: moving onto itself
	// is a no-op, not a conflict.
	if l.slotTaken(newProviderID, newDate, newSlot, a.ID) {
		return nil, ErrSlotConflict
	}

	a.ProviderID = newProviderID
	a.Date = calendar.DateOnly(newDate)
	a.Slot = newSlot
	a.UpdatedAt = l.now()
	out := *a
	return &out, nil
}

func (l *MemoryLedger) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var all []Appointment
	for _, a := range l.appointments {
		if a.PatientID == patientID {
			all = append(all, *a)
		}
	}
	sortAppointments(all)

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (l *MemoryLedger) ListByProvider(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var all []Appointment
	for _, a := range l.appointments {
		if a.ProviderID == providerID && (date.IsZero() || sameDate(a.Date, date)) {
			all = append(all, *a)
		}
	}
	sortAppointments(all)
	return all, nil
}

func (l *MemoryLedger) CountByProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, a := range l.appointments {
		if a.ProviderID == providerID {
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) InsertEvent(ctx context.Context, ev EventLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.ID = int64(len(l.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.now()
	}
	l.events = append(l.events, ev)
	return nil
}

// Events returns a copy of the recorded audit trail.
func (l *MemoryLedger) Events() []EventLog {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]EventLog, len(l.events))
	copy(out, l.events)
	return out
}

func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].Date.Equal(appts[j].Date) {
			return appts[i].Date.Before(appts[j].Date)
		}
		return appts[i].Slot < appts[j].Slot
	})
}

// MemoryDirectory is the in-process Directory companion to MemoryLedger.
type MemoryDirectory struct {
	mu        sync.Mutex
	providers map[uuid.UUID]*Provider
	patients  map[uuid.UUID]*Patient
	now       func() time.Time
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		providers: make(map[uuid.UUID]*Provider),
		patients:  make(map[uuid.UUID]*Patient),
		now:       time.Now,
	}
}

func (d *MemoryDirectory) CreateProvider(ctx context.Context, name string, specialty Specialty) (*Provider, error) {
	if !ValidSpecialty(specialty) {
		return nil, ErrInvalidSpecialty
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p := &Provider{
		ID:        uuid.New(),
		Name:      name,
		Specialty: specialty,
		CreatedAt: d.now(),
		UpdatedAt: d.now(),
	}
	d.providers[p.ID] = p
	out := *p
	return &out, nil
}

func (d *MemoryDirectory) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.providers[id]
	if !ok {
		return nil, ErrUnknownProvider
	}
	out := *p
	return &out, nil
}

func (d *MemoryDirectory) ListProviders(ctx context.Context) ([]Provider, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		out = append(out, *p)
	}
	return out, nil
}

func (d *MemoryDirectory) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.providers[id]; !ok {
		return ErrUnknownProvider
	}
	delete(d.providers, id)
	return nil
}

func (d *MemoryDirectory) CreatePatient(ctx context.Context, name string, phone *string) (*Patient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := &Patient{
		ID:        uuid.New(),
		Name:      name,
		Phone:     phone,
		CreatedAt: d.now(),
		UpdatedAt: d.now(),
	}
	d.patients[p.ID] = p
	out := *p
	return &out, nil
}

func (d *MemoryDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.patients[id]
	if !ok {
		return nil, ErrUnknownPatient
	}
	out := *p
	return &out, nil
}
