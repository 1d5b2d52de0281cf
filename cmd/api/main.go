package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"scorecard.org/internal/audit"
	"scorecard.org/internal/auth"
	"scorecard.org/internal/httpapi"
	"scorecard.org/internal/obs"
	"scorecard.org/internal/sheet"
	"scorecard.org/internal/store/pg"
	"scorecard.org/internal/template"
)

var version = "0.3.0"

func main() {
	obs.Init()

	dsn := os.Getenv("SCORECARD_PG_DSN")
	if dsn == "" {
		log.Fatal("SCORECARD_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	authOpts := []auth.Option{}
	if cost := os.Getenv("SCORECARD_BCRYPT_COST"); cost != "" {
		n, err := strconv.Atoi(cost)
		if err != nil {
			log.Fatalf("SCORECARD_BCRYPT_COST: %v", err)
		}
		authOpts = append(authOpts, auth.WithBcryptCost(n))
	}
	if ttl := os.Getenv("SCORECARD_ACCESS_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatalf("SCORECARD_ACCESS_TTL: %v", err)
		}
		authOpts = append(authOpts, auth.WithAccessTTL(d))
	}
	if ttl := os.Getenv("SCORECARD_REFRESH_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatalf("SCORECARD_REFRESH_TTL: %v", err)
		}
		authOpts = append(authOpts, auth.WithRefreshTTL(d))
	}

	authSvc, err := auth.NewService(store, os.Getenv("SCORECARD_AUTH_SECRET"), authOpts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	recorder := audit.NewRecorder(store)
	templateSvc := template.NewService(store)
	sheetSvc := sheet.NewService(store, store)

	api := httpapi.New(authSvc, templateSvc, sheetSvc, recorder,
		httpapi.ReadyProbe{DB: store.DB()},
		httpapi.Config{
			Version:       version,
			SecureCookies: os.Getenv("SCORECARD_ENV") == "production",
		})

	addr := os.Getenv("SCORECARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting scorecard-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
