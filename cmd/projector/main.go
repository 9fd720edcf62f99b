package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hostwell/pms-reservations/internal/config"
	kafkax "github.com/hostwell/pms-reservations/internal/kafka"
	"github.com/hostwell/pms-reservations/internal/postgres"
	"github.com/hostwell/pms-reservations/internal/projector"
	"github.com/hostwell/pms-reservations/internal/redisx"
	"github.com/hostwell/pms-reservations/internal/reservations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &projector.Service{
		Store: &projector.PostgresStore{DB: db},
		Dedup: &redisx.Dedup{Client: rdb, Name: cfg.ConsumerGroup},
	}

	consumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup,
		reservations.TopicReservationEvents, cfg.ConsumerWorkers)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("shutting down...")
		cancel()
	}()

	log.Printf("projector consuming %s as %s with %d workers",
		reservations.TopicReservationEvents, cfg.ConsumerGroup, cfg.ConsumerWorkers)
	if err := consumer.Start(ctx, svc.HandleEvent); err != nil {
		log.Fatalf("consumer: %v", err)
	}
}
