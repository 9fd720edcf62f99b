package projector

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostwell/pms-reservations/internal/postgres"
	"github.com/hostwell/pms-reservations/internal/reservations"
)

// PostgresStore writes the read models. Each call is its own tenant-bound
// transaction; the projector owns these tables and nothing else writes them.
type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) UpsertSegments(ctx context.Context, tenantID string, segs []reservations.CalendarSegment) error {
	tx, err := postgres.TenantTx(ctx, s.DB, tenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, seg := range segs {
		_, err := tx.Exec(ctx, `
			INSERT INTO calendar_segments (
				tenant_id, property_id, room_id, business_date, reservation_id,
				guest_name, status, source, color_key, arrival, last_night, updated_at
			) VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (tenant_id, room_id, business_date) DO UPDATE SET
				property_id = EXCLUDED.property_id,
				reservation_id = EXCLUDED.reservation_id,
				guest_name = EXCLUDED.guest_name,
				status = EXCLUDED.status,
				source = EXCLUDED.source,
				color_key = EXCLUDED.color_key,
				arrival = EXCLUDED.arrival,
				last_night = EXCLUDED.last_night,
				updated_at = now()`,
			tenantID, seg.PropertyID, seg.RoomID, seg.Date, seg.ReservationID,
			seg.GuestName, seg.Status, seg.Source, seg.ColorKey, seg.Arrival, seg.LastNight)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteSegments(ctx context.Context, tenantID, roomID string, from, to time.Time) error {
	tx, err := postgres.TenantTx(ctx, s.DB, tenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		DELETE FROM calendar_segments
		WHERE room_id = $1 AND business_date >= $2::date AND business_date < $3::date`,
		roomID, from, to)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CountForDate derives the occupancy aggregate for one property/date from
// the segment rows (occupied, arrivals, departures) and the room catalog
// (available). Segment-derived, so a full event replay rebuilds it too.
func (s *PostgresStore) CountForDate(ctx context.Context, tenantID, propertyID string, date time.Time) (reservations.DailyOccupancy, error) {
	out := reservations.DailyOccupancy{
		PropertyID: propertyID,
		Date:       date.Format(reservations.DateFormat),
	}

	tx, err := postgres.TenantTx(ctx, s.DB, tenantID)
	if err != nil {
		return out, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var totalRooms int
	err = tx.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM rooms WHERE property_id = $1),
			(SELECT COUNT(*) FROM calendar_segments
			   WHERE property_id = $1 AND business_date = $2::date),
			(SELECT COUNT(*) FROM calendar_segments
			   WHERE property_id = $1 AND business_date = $2::date AND arrival),
			(SELECT COUNT(*) FROM calendar_segments
			   WHERE property_id = $1 AND business_date = ($2::date - 1) AND last_night)`,
		propertyID, date).Scan(&totalRooms, &out.Occupied, &out.Arrivals, &out.Departures)
	if err != nil {
		return out, err
	}
	out.Available = totalRooms - out.Occupied
	return out, tx.Commit(ctx)
}

func (s *PostgresStore) UpsertOccupancy(ctx context.Context, tenantID string, rows []reservations.DailyOccupancy) error {
	tx, err := postgres.TenantTx(ctx, s.DB, tenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, row := range rows {
		_, err := tx.Exec(ctx, `
			INSERT INTO daily_occupancy (
				tenant_id, property_id, business_date, occupied, available, arrivals, departures, updated_at
			) VALUES ($1,$2,$3::date,$4,$5,$6,$7,now())
			ON CONFLICT (tenant_id, property_id, business_date) DO UPDATE SET
				occupied = EXCLUDED.occupied,
				available = EXCLUDED.available,
				arrivals = EXCLUDED.arrivals,
				departures = EXCLUDED.departures,
				updated_at = now()`,
			tenantID, row.PropertyID, row.Date, row.Occupied, row.Available, row.Arrivals, row.Departures)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
