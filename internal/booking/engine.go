package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/scheduling/internal/availability"
	"github.com/medbook/scheduling/internal/calendar"
	redisclient "github.com/medbook/scheduling/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentReactivated = "APPOINTMENT_REACTIVATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventWindowDeclared         = "WINDOW_DECLARED"
	EventWindowRemoved          = "WINDOW_REMOVED"
)

var (
	ErrLeadTimeViolation = errors.New("booking instant is too soon or in the past")
	ErrSlotNotOffered    = errors.New("slot is not offered on this date")
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
	ErrRoleNotAllowed    = errors.New("role is not allowed to perform this operation")
)

// Engine orchestrates the calendar rules, the availability store and the
// booking ledger. It owns no state of its own; every collaborator is
// injected.
type Engine struct {
	ledger Ledger
	store  availability.Store
	dir    Directory
	locker redisclient.Locker
	now    func() time.Time
	log    zerolog.Logger
}

func NewEngine(ledger Ledger, store availability.Store, dir Directory, locker redisclient.Locker, log zerolog.Logger) *Engine {
	return NewEngineAt(ledger, store, dir, locker, log, time.Now)
}

// NewEngineAt pins the engine's clock. Tests use it to make lead-time
// checks deterministic.
func NewEngineAt(ledger Ledger, store availability.Store, dir Directory, locker redisclient.Locker, log zerolog.Logger, now func() time.Time) *Engine {
	return &Engine{
		ledger: ledger,
		store:  store,
		dir:    dir,
		locker: locker,
		now:    now,
		log:    log,
	}
}

func slotLockKey(providerID uuid.UUID, date time.Time, slot calendar.TimeOfDay) string {
	return fmt.Sprintf("%s:%s:%s", providerID, calendar.DateOnly(date).Format("2006-01-02"), slot)
}

// validateTarget runs the booking checks in order: past date and lead
// time first, then whether the slot is offered at all, then whether it is
// taken. exclude is the id of an appointment whose own slot does not count
// as a conflict (its reschedule vacates it); uuid.Nil excludes nothing.
func (e *Engine) validateTarget(ctx context.Context, providerID uuid.UUID, date time.Time, slot calendar.TimeOfDay, exclude uuid.UUID) error {
	now := e.now()
	if calendar.IsPastDate(date, now) || !calendar.MeetsLeadTime(date, slot, now) {
		return ErrLeadTimeViolation
	}

	if !calendar.IsSlotAligned(slot) {
		return ErrSlotNotOffered
	}
	offered, err := availability.DerivedSlots(ctx, e.store, providerID, date)
	if err != nil {
		return fmt.Errorf("derive slots: %w", err)
	}
	if !containsSlot(offered, slot) {
		return ErrSlotNotOffered
	}

	active, err := e.ledger.ActiveSlots(ctx, providerID, date)
	if err != nil {
		return fmt.Errorf("load active slots: %w", err)
	}
	if containsSlot(active, slot) {
		if exclude != uuid.Nil {
			if own, err := e.ledger.Get(ctx, exclude); err == nil &&
				own.ProviderID == providerID && sameDate(own.Date, date) && own.Slot == slot {
				return nil
			}
		}
		return ErrSlotConflict
	}
	return nil
}

func containsSlot(slots []calendar.TimeOfDay, s calendar.TimeOfDay) bool {
	for _, v := range slots {
		if v == s {
			return true
		}
	}
	return false
}

// ListAvailableSlots returns the provider's offered slots on a date, minus
// those holding a confirmed appointment.
func (e *Engine) ListAvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]calendar.TimeOfDay, error) {
	if _, err := e.dir.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	offered, err := availability.DerivedSlots(ctx, e.store, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("derive slots: %w", err)
	}
	active, err := e.ledger.ActiveSlots(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("load active slots: %w", err)
	}

	taken := make(map[calendar.TimeOfDay]struct{}, len(active))
	for _, s := range active {
		taken[s] = struct{}{}
	}

	free := make([]calendar.TimeOfDay, 0, len(offered))
	for _, s := range offered {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return free, nil
}

// CreateAppointment validates and books a slot. The critical section from
// conflict check to insert runs under a per-(provider, date, slot) lock so
// concurrent requests for the same slot produce exactly one confirmed
// appointment; the ledger's own conflict check is the backstop.
func (e *Engine) CreateAppointment(ctx context.Context, patientID, providerID uuid.UUID, date time.Time, slot calendar.TimeOfDay, urgent bool) (*Appointment, error) {
	if _, err := e.dir.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	if _, err := e.dir.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	var created *Appointment

	err := e.locker.WithSlotLock(ctx, slotLockKey(providerID, date, slot), func(lockCtx context.Context) error {
		if err := e.validateTarget(lockCtx, providerID, date, slot, uuid.Nil); err != nil {
			return err
		}

		appt, err := e.ledger.Insert(lockCtx, Appointment{
			PatientID:  patientID,
			ProviderID: providerID,
			Date:       date,
			Slot:       slot,
			Urgent:     urgent,
		})
		if err != nil {
			return err
		}

		created = appt
		e.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"patient_id":  patientID.String(),
			"provider_id": providerID.String(),
			"date":        calendar.DateOnly(date).Format("2006-01-02"),
			"slot":        slot.String(),
			"urgent":      urgent,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}
	return created, nil
}

// CancelAppointment flips the appointment to cancelled. No availability
// re-check: cancellation always succeeds once the appointment is found and
// still confirmed. The actor role is recorded for the audit trail;
// ownership checks belong to the caller's authorization layer.
func (e *Engine) CancelAppointment(ctx context.Context, id uuid.UUID, actor Role) (*Appointment, error) {
	appt, err := e.ledger.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	e.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
		"actor_role": string(actor),
	})
	return appt, nil
}

// ReactivateAppointment restores a cancelled appointment, re-running the
// full booking validation against its own (provider, date, slot): the slot
// may have been rebooked, the window removed, or the instant passed since
// cancellation. Patients cannot reactivate.
func (e *Engine) ReactivateAppointment(ctx context.Context, id uuid.UUID, actor Role) (*Appointment, error) {
	if actor != RoleProvider && actor != RoleAdmin {
		return nil, ErrRoleNotAllowed
	}

	appt, err := e.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusCancelled {
		return nil, ErrNotCancelled
	}

	var restored *Appointment

	err = e.locker.WithSlotLock(ctx, slotLockKey(appt.ProviderID, appt.Date, appt.Slot), func(lockCtx context.Context) error {
		if err := e.validateTarget(lockCtx, appt.ProviderID, appt.Date, appt.Slot, uuid.Nil); err != nil {
			return err
		}

		a, err := e.ledger.Reactivate(lockCtx, id)
		if err != nil {
			return err
		}

		restored = a
		e.logEvent(lockCtx, a.ID, EventAppointmentReactivated, map[string]any{
			"actor_role": string(actor),
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}
	return restored, nil
}

// RescheduleAppointment moves an appointment to a new target, preserving
// id, patient, urgency and status. Rescheduling onto the slot it already
// holds is an idempotent no-op. A cancelled appointment cannot be moved;
// reactivate it first.
func (e *Engine) RescheduleAppointment(ctx context.Context, id uuid.UUID, newProviderID uuid.UUID, newDate time.Time, newSlot calendar.TimeOfDay) (*Appointment, error) {
	appt, err := e.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if _, err := e.dir.GetProvider(ctx, newProviderID); err != nil {
		return nil, err
	}

	if appt.ProviderID == newProviderID && sameDate(appt.Date, newDate) && appt.Slot == newSlot {
		return appt, nil
	}

	var moved *Appointment

	err = e.locker.WithSlotLock(ctx, slotLockKey(newProviderID, newDate, newSlot), func(lockCtx context.Context) error {
		if err := e.validateTarget(lockCtx, newProviderID, newDate, newSlot, id); err != nil {
			return err
		}

		a, err := e.ledger.Reschedule(lockCtx, id, newProviderID, newDate, newSlot)
		if err != nil {
			return err
		}

		moved = a
		e.logEvent(lockCtx, a.ID, EventAppointmentRescheduled, map[string]any{
			"provider_id": newProviderID.String(),
			"date":        calendar.DateOnly(newDate).Format("2006-01-02"),
			"slot":        newSlot.String(),
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}
	return moved, nil
}

// DeclareWindow opens a booking window for a provider. Declaring an exact
// duplicate reports the existing window with created=false.
func (e *Engine) DeclareWindow(ctx context.Context, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) (*availability.Window, bool, error) {
	if _, err := e.dir.GetProvider(ctx, providerID); err != nil {
		return nil, false, err
	}

	w, created, err := e.store.Declare(ctx, providerID, date, start, end)
	if err != nil {
		return nil, false, err
	}
	if created {
		e.logEvent(ctx, uuid.Nil, EventWindowDeclared, map[string]any{
			"provider_id": providerID.String(),
			"date":        calendar.DateOnly(date).Format("2006-01-02"),
			"start":       start.String(),
			"end":         end.String(),
		})
	}
	return w, created, nil
}

// RemoveWindow deletes an exact-match window. Confirmed appointments booked
// through it stay confirmed; removal only gates new bookings.
func (e *Engine) RemoveWindow(ctx context.Context, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) error {
	if _, err := e.dir.GetProvider(ctx, providerID); err != nil {
		return err
	}

	if err := e.store.Remove(ctx, providerID, date, start, end); err != nil {
		return err
	}
	e.logEvent(ctx, uuid.Nil, EventWindowRemoved, map[string]any{
		"provider_id": providerID.String(),
		"date":        calendar.DateOnly(date).Format("2006-01-02"),
		"start":       start.String(),
		"end":         end.String(),
	})
	return nil
}

func (e *Engine) CreateProvider(ctx context.Context, name string, specialty Specialty) (*Provider, error) {
	return e.dir.CreateProvider(ctx, name, specialty)
}

// DeleteProvider removes a provider record. Deletion is forbidden while
// any appointment, confirmed or cancelled, still references the provider;
// appointment rows are audit history and must not be orphaned.
func (e *Engine) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	if _, err := e.dir.GetProvider(ctx, id); err != nil {
		return err
	}

	n, err := e.ledger.CountByProvider(ctx, id)
	if err != nil {
		return fmt.Errorf("count provider appointments: %w", err)
	}
	if n > 0 {
		return ErrProviderHasAppointments
	}
	return e.dir.DeleteProvider(ctx, id)
}

func (e *Engine) ListProviders(ctx context.Context) ([]Provider, error) {
	return e.dir.ListProviders(ctx)
}

func (e *Engine) RegisterPatient(ctx context.Context, name string, phone *string) (*Patient, error) {
	return e.dir.CreatePatient(ctx, name, phone)
}

func (e *Engine) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.ledger.Get(ctx, id)
}

func (e *Engine) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := e.dir.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return e.ledger.ListByPatient(ctx, patientID, limit, offset)
}

func (e *Engine) ListProviderAppointments(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	if _, err := e.dir.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return e.ledger.ListByProvider(ctx, providerID, date)
}

func (e *Engine) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: e.now(),
	}
	if appointmentID != uuid.Nil {
		id := appointmentID
		ev.AppointmentID = &id
	}

	if err := e.ledger.InsertEvent(ctx, ev); err != nil {
		e.log.Error().Err(err).Str("event", eventType).Msg("insert event log")
	}
}
