package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medigrid/slotbooker/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	providers := getInt("SEED_PROVIDERS", 100)
	days := getInt("SEED_DAYS", 14)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedSlots(context.Background(), pool, providers, days); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

// seedSlots creates a grid of 30-minute windows during business hours for a
// set of fabricated provider ids. Provider identities themselves live in the
// directory service; this subsystem only ever sees their ids.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, providers, days int) error {
	log.Printf("seeding slots for %d providers over %d days", providers, days)

	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	total := 0
	for p := 0; p < providers; p++ {
		providerID := uuid.New()

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for d := 0; d < days; d++ {
			day := dayStart.AddDate(0, 0, d)

			// 09:00–17:00, half-hour windows, with random gaps so the grid
			// looks like a real calendar.
			for half := 0; half < 16; half++ {
				if gofakeit.Number(0, 3) == 0 {
					continue
				}

				start := day.Add(9*time.Hour + time.Duration(half)*30*time.Minute)
				end := start.Add(30 * time.Minute)

				_, err := tx.Exec(ctx, `
					INSERT INTO slots (id, provider_id, start_time, end_time, occupied, version, created_at, updated_at)
					VALUES ($1, $2, $3, $4, false, 1, now(), now())
				`, uuid.New(), providerID, start, end)
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
				total++
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		if (p+1)%20 == 0 {
			log.Printf("providers seeded: %d/%d (%d slots)", p+1, providers, total)
		}
	}

	log.Printf("slots seeded: %d", total)
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
