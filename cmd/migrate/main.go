package main

import (
	"context"
	"log"
	"os"
	"time"

	"scorecard.org/internal/store/pg"
)

func main() {
	dsn := os.Getenv("SCORECARD_PG_DSN")
	if dsn == "" {
		log.Fatal("SCORECARD_PG_DSN is required")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := pg.RunMigrations(ctx, store.DB()); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("Migrations applied")
}
