package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hostwell/pms-reservations/internal/audit"
	"github.com/hostwell/pms-reservations/internal/config"
	"github.com/hostwell/pms-reservations/internal/httpx"
	kafkax "github.com/hostwell/pms-reservations/internal/kafka"
	"github.com/hostwell/pms-reservations/internal/noshow"
	"github.com/hostwell/pms-reservations/internal/outbox"
	"github.com/hostwell/pms-reservations/internal/postgres"
	"github.com/hostwell/pms-reservations/internal/redisx"
	"github.com/hostwell/pms-reservations/internal/reservations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// migrations run at startup; idempotent, so every replica may race them
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, reservations.TopicReservationEvents)
	defer prod.Close()

	commands := &reservations.Commands{
		DB:      db,
		Audit:   &audit.Log{DB: db},
		Service: cfg.ServiceName,
	}
	repo := &reservations.Repo{DB: db}

	router := httpx.NewRouter()
	rh := &httpx.ReservationsHandler{
		Commands: commands,
		Repo:     repo,
		Redis:    rdb,
	}
	rh.Register(router)

	dispatcher := &outbox.Dispatcher{
		DB:        db,
		Publisher: prod,
		Batch:     cfg.OutboxBatch,
		Interval:  cfg.OutboxInterval,
	}
	go dispatcher.Start(ctx)

	sweeper := &noshow.Sweeper{Commands: commands, Interval: cfg.NoShowInterval}
	go sweeper.Start(ctx)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // stop dispatcher and sweeper loops
}
