// Package projector folds published reservation events into the
// read-optimized calendar and occupancy models. Handlers are idempotent:
// every write is an upsert or a ranged delete keyed by (room, date) or
// (property, date), so replaying the event log from empty state rebuilds
// the models exactly.
package projector

import (
	"context"
	"fmt"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/hostwell/pms-reservations/internal/kafka"
	"github.com/hostwell/pms-reservations/internal/reservations"
)

// Store is the write side of the read models. Implemented by
// PostgresStore; tests use an in-memory fake.
type Store interface {
	UpsertSegments(ctx context.Context, tenantID string, segs []reservations.CalendarSegment) error
	DeleteSegments(ctx context.Context, tenantID, roomID string, from, to time.Time) error
	UpsertOccupancy(ctx context.Context, tenantID string, rows []reservations.DailyOccupancy) error
	CountForDate(ctx context.Context, tenantID, propertyID string, date time.Time) (reservations.DailyOccupancy, error)
}

// Dedup remembers processed event ids. Implemented by redisx.Dedup.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Service struct {
	Store Store
	Dedup Dedup // optional
}

// HandleEvent is the Kafka consumer handler.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env reservations.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		return err
	}

	// dedup by event id; at-least-once delivery makes replays routine
	if s.Dedup != nil {
		if seen, _ := s.Dedup.Seen(ctx, env.EventID); seen {
			return nil
		}
	}

	if err := s.apply(ctx, env); err != nil {
		return err
	}

	// mark only after a successful fold: a failed apply must stay
	// re-appliable when the message is redelivered
	if s.Dedup != nil {
		if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
			log.Printf("projector: dedup mark %s: %v", env.EventID, err)
		}
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env reservations.Envelope) error {
	switch env.EventType {
	case reservations.EventReservationCreated,
		reservations.EventReservationCheckedIn,
		reservations.EventReservationCheckedOut,
		reservations.EventReservationCancelled,
		reservations.EventReservationNoShow,
		reservations.EventReservationRoomMoved,
		reservations.EventReservationDatesChanged:
	case reservations.EventRoomOutOfOrder, reservations.EventRoomRestored:
		return nil // maintenance blocks are not guest segments
	default:
		log.Printf("projector: ignoring event type %q", env.EventType)
		return nil
	}

	p, err := kafkax.UnwrapPayload[reservations.ReservationPayload](env.Payload)
	if err != nil {
		return err
	}

	checkIn, checkOut, err := parseSpan(p.CheckIn, p.CheckOut)
	if err != nil {
		return err
	}

	// clear the previous span first so moves and resizes leave no orphans
	if p.PrevRoomID != nil || p.PrevCheckIn != "" {
		prevRoom := p.RoomID
		if p.PrevRoomID != nil {
			prevRoom = p.PrevRoomID
		}
		prevIn, prevOut := checkIn, checkOut
		if p.PrevCheckIn != "" {
			if prevIn, prevOut, err = parseSpan(p.PrevCheckIn, p.PrevCheckOut); err != nil {
				return err
			}
		}
		if prevRoom != nil {
			if err := s.Store.DeleteSegments(ctx, p.TenantID, *prevRoom, prevIn, prevOut); err != nil {
				return err
			}
		}
	}

	segs := SegmentsFor(p)
	if len(segs) > 0 {
		if err := s.Store.UpsertSegments(ctx, p.TenantID, segs); err != nil {
			return err
		}
	} else if p.RoomID != nil {
		// terminal status: the span no longer occupies the room
		if err := s.Store.DeleteSegments(ctx, p.TenantID, *p.RoomID, checkIn, checkOut); err != nil {
			return err
		}
	}

	return s.recomputeOccupancy(ctx, p, checkIn, checkOut)
}

// Occupying reports whether a reservation in this status holds its room.
func Occupying(st reservations.Status) bool {
	return st == reservations.StatusConfirmed || st == reservations.StatusCheckedIn
}

// SegmentsFor computes the per-night segment rows for an event payload.
// Pure: the replay tests exercise this directly. Returns nil when the
// reservation has no room yet or no longer occupies one.
func SegmentsFor(p reservations.ReservationPayload) []reservations.CalendarSegment {
	if p.RoomID == nil || !Occupying(p.Status) {
		return nil
	}
	checkIn, checkOut, err := parseSpan(p.CheckIn, p.CheckOut)
	if err != nil {
		return nil
	}
	lastNight := checkOut.AddDate(0, 0, -1)

	var segs []reservations.CalendarSegment
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		segs = append(segs, reservations.CalendarSegment{
			PropertyID:    p.PropertyID,
			RoomID:        *p.RoomID,
			Date:          d.Format(reservations.DateFormat),
			ReservationID: p.ReservationID,
			GuestName:     p.GuestName,
			Status:        p.Status,
			Source:        p.Source,
			ColorKey:      p.Status.ColorKey(),
			Arrival:       d.Equal(checkIn),
			LastNight:     d.Equal(lastNight),
		})
	}
	return segs
}

// recomputeOccupancy refreshes the aggregate for every date the event
// touched, including the departure date and any previous span.
func (s *Service) recomputeOccupancy(ctx context.Context, p reservations.ReservationPayload, checkIn, checkOut time.Time) error {
	from, to := checkIn, checkOut
	if p.PrevCheckIn != "" {
		if prevIn, prevOut, err := parseSpan(p.PrevCheckIn, p.PrevCheckOut); err == nil {
			if prevIn.Before(from) {
				from = prevIn
			}
			if prevOut.After(to) {
				to = prevOut
			}
		}
	}

	var rows []reservations.DailyOccupancy
	// inclusive of the checkout date: departures count there
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		row, err := s.Store.CountForDate(ctx, p.TenantID, p.PropertyID, d)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return s.Store.UpsertOccupancy(ctx, p.TenantID, rows)
}

func parseSpan(from, to string) (time.Time, time.Time, error) {
	a, err := time.Parse(reservations.DateFormat, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse check-in %q: %w", from, err)
	}
	b, err := time.Parse(reservations.DateFormat, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse check-out %q: %w", to, err)
	}
	return a, b, nil
}
