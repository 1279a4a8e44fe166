package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownProvider
		}
		return nil, err
	}
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var phone *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownPatient
		}
		return nil, err
	}

	p.Phone = phone
	return &p, nil
}

func (d *PgDirectory) CreateProvider(ctx context.Context, name string, specialty Specialty) (*Provider, error) {
	if !ValidSpecialty(specialty) {
		return nil, ErrInvalidSpecialty
	}

	id := uuid.New()
	row := d.pool.QueryRow(ctx, `
		INSERT INTO providers (id, name, specialty, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, name, specialty, created_at, updated_at
	`, id, name, specialty)
	return scanProvider(row)
}

func (d *PgDirectory) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (d *PgDirectory) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *PgDirectory) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	tag, err := d.pool.Exec(ctx, `
		DELETE FROM providers WHERE id = $1
	`, id)
	if err != nil {
		// appointments.provider_id is ON DELETE RESTRICT; the constraint
		// backstops the engine's integrity check under races.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrProviderHasAppointments
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownProvider
	}
	return nil
}

func (d *PgDirectory) CreatePatient(ctx context.Context, name string, phone *string) (*Patient, error) {
	id := uuid.New()
	row := d.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, name, phone, created_at, updated_at
	`, id, name, phone)
	return scanPatient(row)
}

func (d *PgDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}
