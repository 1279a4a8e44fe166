package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/scheduling/internal/booking"
	"github.com/medbook/scheduling/internal/calendar"
	"github.com/medbook/scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedWindows(context.Background(), pool, providerIDs, 14); err != nil {
		log.Fatalf("seed windows: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	specialties := []booking.Specialty{
		booking.SpecialtyRadiology,
		booking.SpecialtyAnesthesiology,
		booking.SpecialtyCardiology,
		booking.SpecialtyDentistry,
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, specialty)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("providers seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, phone, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedWindows declares a morning and an afternoon window for roughly half
// the providers over the coming days; the rest keep default hours.
func seedWindows(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID, days int) error {
	log.Printf("seeding windows for %d providers over %d days", len(providerIDs), days)

	morningStarts := []string{"08:00", "08:30", "09:00"}
	afternoonStarts := []string{"13:00", "13:30", "14:00"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := calendar.DateOnly(time.Now())
	for _, providerID := range providerIDs {
		if gofakeit.Bool() {
			continue
		}
		for d := 1; d <= days; d++ {
			date := today.AddDate(0, 0, d)

			start, _ := calendar.ParseTimeOfDay(morningStarts[gofakeit.Number(0, len(morningStarts)-1)])
			end, _ := calendar.ParseTimeOfDay("11:30")
			if err := insertWindow(ctx, tx, providerID, date, start, end); err != nil {
				return err
			}

			start, _ = calendar.ParseTimeOfDay(afternoonStarts[gofakeit.Number(0, len(afternoonStarts)-1)])
			end, _ = calendar.ParseTimeOfDay("16:30")
			if err := insertWindow(ctx, tx, providerID, date, start, end); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("windows seeded")
	return nil
}

func insertWindow(ctx context.Context, tx pgx.Tx, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO availability_windows (id, provider_id, date, start_minutes, end_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT DO NOTHING
	`, uuid.New(), providerID, date, start.Minutes(), end.Minutes())
	return err
}
