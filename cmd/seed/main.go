package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/immucare/vaccine-booking/internal/db"
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

	vaccineIDs, err := seedVaccines(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed vaccines: %v", err)
	}
	if err := seedIncompatibilities(context.Background(), pool, vaccineIDs); err != nil {
		log.Fatalf("seed incompatibilities: %v", err)
	}

	centerIDs, err := seedCenters(context.Background(), pool, 25)
	if err != nil {
		log.Fatalf("seed centers: %v", err)
	}
	if err := seedSlots(context.Background(), pool, centerIDs, 30); err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	if err := seedLotsAndStock(context.Background(), pool, centerIDs, vaccineIDs); err != nil {
		log.Fatalf("seed lots and stock: %v", err)
	}

	log.Println("seed complete")
}

type vaccineSpec struct {
	name       string
	doses      int
	daysApart  int
	priceCents int64
}

func seedVaccines(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	specs := []vaccineSpec{
		{"Influenza Quadrivalent", 1, 0, 2500},
		{"COVID-19 mRNA", 2, 21, 0},
		{"Hepatitis B", 3, 30, 4500},
		{"HPV 9-valent", 2, 180, 21000},
		{"Tetanus-Diphtheria", 1, 0, 3200},
		{"MMR", 2, 28, 7800},
		{"Varicella", 2, 28, 11500},
		{"Rabies", 3, 7, 35000},
	}

	log.Printf("seeding %d vaccines", len(specs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(specs))
	for _, spec := range specs {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO vaccines (id, name, doses_required, days_between_doses, price_cents, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, spec.name, spec.doses, spec.daysApart, spec.priceCents)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("vaccines seeded")
	return ids, nil
}

func seedIncompatibilities(ctx context.Context, pool *pgxpool.Pool, vaccineIDs []uuid.UUID) error {
	if len(vaccineIDs) < 4 {
		return nil
	}

	// A handful of plausible pairs; real data comes from clinical guidance.
	pairs := [][3]int{
		{0, 1, 14}, // flu vs covid
		{1, 5, 28}, // covid vs mmr
		{5, 6, 28}, // mmr vs varicella
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range pairs {
		_, err := tx.Exec(ctx, `
			INSERT INTO vaccine_incompatibilities (vaccine_a_id, vaccine_b_id, min_days_between)
			VALUES ($1, $2, $3)
		`, vaccineIDs[p[0]], vaccineIDs[p[1]], p[2])
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("incompatibilities seeded")
	return nil
}

func seedCenters(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d centers", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := fmt.Sprintf("%s Vaccination Center", gofakeit.City())
		addr := gofakeit.Address().Address

		_, err := tx.Exec(ctx, `
			INSERT INTO centers (id, name, address, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, addr)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("centers seeded")
	return ids, nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, centerIDs []uuid.UUID, days int) error {
	log.Printf("seeding slots for %d centers over %d days", len(centerIDs), days)

	for _, centerID := range centerIDs {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for d := 1; d <= days; d++ {
			day := time.Now().AddDate(0, 0, d)
			date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

			// Hourly slots between 09:00 and 16:00.
			for hour := 9; hour < 16; hour++ {
				startsAt := date.Add(time.Duration(hour) * time.Hour)
				capacity := gofakeit.Number(5, 30)

				_, err := tx.Exec(ctx, `
					INSERT INTO appointment_slots (id, center_id, slot_date, starts_at, ends_at, max_capacity, current_bookings, is_available, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, 0, true, now(), now())
				`, uuid.New(), centerID, date, startsAt, startsAt.Add(time.Hour), capacity)
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("slots seeded")
	return nil
}

func seedLotsAndStock(ctx context.Context, pool *pgxpool.Pool, centerIDs, vaccineIDs []uuid.UUID) error {
	log.Printf("seeding lots and stock for %d vaccines", len(vaccineIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, vaccineID := range vaccineIDs {
		lots := gofakeit.Number(2, 5)
		for i := 0; i < lots; i++ {
			qty := gofakeit.Number(200, 2000)
			expiry := time.Now().AddDate(0, gofakeit.Number(2, 18), 0)

			_, err := tx.Exec(ctx, `
				INSERT INTO vaccine_lots (id, vaccine_id, lot_number, quantity, remaining_quantity, expiry_date, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4, $5, 'available', now(), now())
			`, uuid.New(), vaccineID, gofakeit.LetterN(3)+gofakeit.DigitN(6), qty, expiry)
			if err != nil {
				return err
			}
		}

		for _, centerID := range centerIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO center_vaccine_stock (center_id, vaccine_id, stock_quantity, updated_at)
				VALUES ($1, $2, $3, now())
			`, centerID, vaccineID, gofakeit.Number(50, 500))
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("lots and stock seeded")
	return nil
}
