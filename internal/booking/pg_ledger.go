package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/scheduling/internal/calendar"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PgLedger struct {
	pool *pgxpool.Pool
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

const appointmentColumns = `id, patient_id, provider_id, date, slot_minutes, urgent, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slot int

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.Date,
		&slot,
		&a.Urgent,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Slot = calendar.TimeOfDay(slot)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (l *PgLedger) ActiveSlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]calendar.TimeOfDay, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT slot_minutes
		FROM appointments
		WHERE provider_id = $1 AND date = $2 AND status = 'confirmed'
		ORDER BY slot_minutes
	`, providerID, calendar.DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []calendar.TimeOfDay
	for rows.Next() {
		var m int
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		slots = append(slots, calendar.TimeOfDay(m))
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

func (l *PgLedger) Insert(ctx context.Context, appt Appointment) (*Appointment, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := l.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, date, slot_minutes, urgent, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'confirmed', now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientID, appt.ProviderID, calendar.DateOnly(appt.Date), appt.Slot.Minutes(), appt.Urgent)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return created, nil
}

func (l *PgLedger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// updateStatus flips status from -> to in one guarded statement, so a
// concurrent transition on the same row cannot be applied twice.
func (l *PgLedger) updateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := l.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (l *PgLedger) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := l.updateStatus(ctx, id, StatusConfirmed, StatusCancelled)
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	// Guarded update matched nothing: distinguish missing from already
	// cancelled.
	existing, getErr := l.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	return nil, fmt.Errorf("cancel appointment %s: unexpected status %s", id, existing.Status)
}

func (l *PgLedger) Reactivate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := l.updateStatus(ctx, id, StatusCancelled, StatusConfirmed)
	if err == nil {
		return appt, nil
	}
	if isUniqueViolation(err) {
		// The slot was rebooked while this appointment sat cancelled.
		return nil, ErrSlotConflict
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	existing, getErr := l.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status != StatusCancelled {
		return nil, ErrNotCancelled
	}
	return nil, fmt.Errorf("reactivate appointment %s: guarded update matched nothing", id)
}

func (l *PgLedger) Reschedule(ctx context.Context, id uuid.UUID, newProviderID uuid.UUID, newDate time.Time, newSlot calendar.TimeOfDay) (*Appointment, error) {
	// A single UPDATE keeps the move atomic. Rescheduling onto the
	// appointment's own slot updates the same index entry, which never
	// conflicts with itself; any other occupied target trips the partial
	// unique index.
	row := l.pool.QueryRow(ctx, `
		UPDATE appointments
		SET provider_id = $2,
		    date = $3,
		    slot_minutes = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, newProviderID, calendar.DateOnly(newDate), newSlot.Minutes())

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return appt, nil
}

func (l *PgLedger) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date, slot_minutes
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (l *PgLedger) ListByProvider(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if date.IsZero() {
		rows, err = l.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE provider_id = $1
			ORDER BY date, slot_minutes
		`, providerID)
	} else {
		rows, err = l.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE provider_id = $1 AND date = $2
			ORDER BY slot_minutes
		`, providerID, calendar.DateOnly(date))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *PgLedger) CountByProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	var n int
	err := l.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments WHERE provider_id = $1
	`, providerID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (l *PgLedger) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
