package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/billing"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Development seeder: creates a two-guardian household roster and generates
// tuition records for the current and previous month so the cart, checkout,
// and analytics flows have data to work against.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	st := store.NewPostgres(pool)
	svc := &billing.Service{Store: st}

	guardianBudi := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	guardianSiti := uuid.MustParse("22222222-2222-4222-8222-222222222222")

	roster := []billing.GeneratePeriodInput{
		{
			StudentID:   uuid.MustParse("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaa1"),
			GuardianID:  guardianBudi,
			StudentName: "Ahmad Santoso",
			BaseAmount:  150000,
		},
		{
			StudentID:   uuid.MustParse("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaa2"),
			GuardianID:  guardianBudi,
			StudentName: "Fatimah Santoso",
			BaseAmount:  150000,
			Discount:    25000,
		},
		{
			StudentID:   uuid.MustParse("bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbb1"),
			GuardianID:  guardianSiti,
			StudentName: "Umar Rahman",
			BaseAmount:  175000,
		},
		{
			StudentID:   uuid.MustParse("bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbb2"),
			GuardianID:  guardianSiti,
			StudentName: "Aisyah Rahman",
			BaseAmount:  175000,
			Discount:    50000,
		},
	}

	now := time.Now()
	seedMonth(ctx, svc, roster, now.AddDate(0, -1, 0))
	seedMonth(ctx, svc, roster, now)

	seedDonation(ctx, st, roster[0], now)

	log.Println("Seeding completed successfully!")
}

func seedMonth(ctx context.Context, svc *billing.Service, roster []billing.GeneratePeriodInput, when time.Time) {
	per := store.Period{Month: int(when.Month()), Year: when.Year()}
	dueDate := time.Date(when.Year(), when.Month(), 10, 0, 0, 0, 0, time.UTC)
	title := "SPP " + when.Format("January 2006")

	result, err := svc.GeneratePeriod(ctx, per, dueDate, title, roster)
	if err != nil {
		log.Fatalf("Failed to generate period %s: %v", per, err)
	}
	log.Printf("Period %s: %d created, %d skipped", per, result.Created, result.Skipped)
}

func seedDonation(ctx context.Context, st store.Store, in billing.GeneratePeriodInput, when time.Time) {
	per := store.Period{Month: int(when.Month()), Year: when.Year()}
	_, err := st.CreateBillingRecord(ctx, store.BillingRecord{
		StudentID:   in.StudentID,
		GuardianID:  in.GuardianID,
		StudentName: in.StudentName,
		Title:       "Infaq Pembangunan",
		Category:    store.CategoryDonation,
		Period:      per,
		BaseAmount:  100000,
		DueDate:     time.Date(when.Year(), when.Month(), 25, 0, 0, 0, 0, time.UTC),
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		log.Printf("Failed to seed donation record: %v", err)
	}
}
