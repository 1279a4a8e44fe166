package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/scheduling/internal/calendar"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrAlreadyCancelled        = errors.New("appointment is already cancelled")
	ErrNotCancelled            = errors.New("appointment is not cancelled")
	ErrSlotConflict            = errors.New("slot already has a confirmed appointment")
	ErrUnknownProvider         = errors.New("provider not found")
	ErrUnknownPatient          = errors.New("patient not found")
	ErrProviderHasAppointments = errors.New("provider still has appointments")
	ErrInvalidSpecialty        = errors.New("invalid specialty")
)

// Ledger contains all appointment persistence needed by the engine. It is
// the single authority for the at-most-one-active-booking-per-
// (provider, date, slot) invariant: Insert, Reactivate and Reschedule are
// atomic check-then-mutate operations.
type Ledger interface {
	// ActiveSlots returns the slots holding a confirmed appointment for
	// the provider on the date.
	ActiveSlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]calendar.TimeOfDay, error)

	// Insert appends appt with status confirmed, or fails with
	// ErrSlotConflict when an active appointment occupies its slot.
	Insert(ctx context.Context, appt Appointment) (*Appointment, error)

	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Cancel flips status to cancelled. The row is kept.
	Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Reactivate flips a cancelled appointment back to confirmed, failing
	// with ErrSlotConflict when its slot has been taken since.
	Reactivate(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Reschedule moves the appointment to a new (provider, date, slot),
	// preserving id, patient, urgency and status. Moving onto the slot it
	// already holds is legal; moving onto a different active appointment
	// fails with ErrSlotConflict.
	Reschedule(ctx context.Context, id uuid.UUID, newProviderID uuid.UUID, newDate time.Time, newSlot calendar.TimeOfDay) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error)

	// CountByProvider counts appointments of any status referencing the
	// provider. Cancelled rows count: they are audit history and pin the
	// provider record.
	CountByProvider(ctx context.Context, providerID uuid.UUID) (int, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Directory resolves providers and patients. Credential storage and
// verification live elsewhere; this is the identity surface the engine
// needs for referential integrity.
type Directory interface {
	CreateProvider(ctx context.Context, name string, specialty Specialty) (*Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)

	// DeleteProvider removes the provider record. Callers enforce the
	// no-orphaned-appointments policy before calling; the Postgres
	// implementation additionally backstops it with a RESTRICT constraint.
	DeleteProvider(ctx context.Context, id uuid.UUID) error

	CreatePatient(ctx context.Context, name string, phone *string) (*Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}
