package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/scheduling/internal/calendar"
)

const uniqueViolation = "23505"

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var start, end int

	err := row.Scan(
		&w.ID,
		&w.ProviderID,
		&w.Date,
		&start,
		&end,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	w.Start = calendar.TimeOfDay(start)
	w.End = calendar.TimeOfDay(end)
	return &w, nil
}

func (s *PgStore) Declare(ctx context.Context, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) (*Window, bool, error) {
	if err := ValidateWindow(date, start, end, time.Now()); err != nil {
		return nil, false, err
	}

	existing, err := s.exactMatch(ctx, providerID, date, start, end)
	if err != nil && !errors.Is(err, ErrWindowNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	id := uuid.New()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO availability_windows (id, provider_id, date, start_minutes, end_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, provider_id, date, start_minutes, end_minutes, created_at
	`, id, providerID, calendar.DateOnly(date), start.Minutes(), end.Minutes())

	w, err := scanWindow(row)
	if err != nil {
		// Lost a race against an identical declaration; report the winner.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			existing, selErr := s.exactMatch(ctx, providerID, date, start, end)
			if selErr != nil {
				return nil, false, selErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return w, true, nil
}

func (s *PgStore) exactMatch(ctx context.Context, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) (*Window, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, provider_id, date, start_minutes, end_minutes, created_at
		FROM availability_windows
		WHERE provider_id = $1 AND date = $2 AND start_minutes = $3 AND end_minutes = $4
	`, providerID, calendar.DateOnly(date), start.Minutes(), end.Minutes())
	return scanWindow(row)
}

func (s *PgStore) Remove(ctx context.Context, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM availability_windows
		WHERE provider_id = $1 AND date = $2 AND start_minutes = $3 AND end_minutes = $4
	`, providerID, calendar.DateOnly(date), start.Minutes(), end.Minutes())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (s *PgStore) WindowsFor(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Window, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, provider_id, date, start_minutes, end_minutes, created_at
		FROM availability_windows
		WHERE provider_id = $1 AND date = $2
		ORDER BY start_minutes
	`, providerID, calendar.DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
