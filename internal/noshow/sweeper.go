// Package noshow runs the time-driven NO_SHOW transition: confirmed
// reservations whose check-in date passed without a check-in are flipped
// by a periodic sweep through the regular command layer.
package noshow

import (
	"context"
	"log"
	"time"
)

type commands interface {
	SweepNoShows(ctx context.Context, asOf time.Time) (int, error)
}

type Sweeper struct {
	Commands commands
	Interval time.Duration
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Printf("no-show sweeper started: interval=%s", s.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("no-show sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.Commands.SweepNoShows(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("no-show sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("no-show sweep marked %d reservations", n)
	}
}
