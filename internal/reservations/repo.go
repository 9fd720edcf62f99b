package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostwell/pms-reservations/internal/postgres"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const reservationColumns = `
	id, tenant_id, property_id, guest_id,
	guest_first_name, guest_last_name, guest_email, guest_phone,
	room_type_id, room_id, rate_plan_id,
	check_in, check_out, status, previous_status, source,
	rate_cents, subtotal_cents, tax_cents, fee_cents, total_cents,
	version, cancel_reason, cancelled_at, cancelled_by,
	checked_in_at, checked_in_by, checked_out_at, checked_out_by,
	created_at, updated_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	err := row.Scan(
		&r.ID, &r.TenantID, &r.PropertyID, &r.GuestID,
		&r.Guest.FirstName, &r.Guest.LastName, &r.Guest.Email, &r.Guest.Phone,
		&r.RoomTypeID, &r.RoomID, &r.RatePlanID,
		&r.CheckIn, &r.CheckOut, &r.Status, &r.PrevStatus, &r.Source,
		&r.RateCents, &r.SubtotalCents, &r.TaxCents, &r.FeeCents, &r.TotalCents,
		&r.Version, &r.CancelReason, &r.CancelledAt, &r.CancelledBy,
		&r.CheckedInAt, &r.CheckedInBy, &r.CheckedOutAt, &r.CheckedOutBy,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// loadReservation fetches one reservation within the caller's transaction.
// forUpdate takes the row lock that serializes command execution on one
// reservation; the version guard still decides who wins.
func loadReservation(ctx context.Context, q Querier, id string, forUpdate bool) (*Reservation, error) {
	sql := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	return scanReservation(q.QueryRow(ctx, sql, id))
}

func loadRoom(ctx context.Context, q Querier, id string) (*Room, error) {
	var rm Room
	err := q.QueryRow(ctx, `
		SELECT id, tenant_id, property_id, room_type_id, room_number
		FROM rooms WHERE id = $1`, id).
		Scan(&rm.ID, &rm.TenantID, &rm.PropertyID, &rm.RoomTypeID, &rm.Number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

// Repo serves tenant-scoped reads. Every method binds the tenant to the
// transaction so row-level security does the scoping server-side.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetReservation(ctx context.Context, tenantID, id string) (*Reservation, error) {
	tx, err := postgres.TenantTx(ctx, r.DB, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := loadReservation(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	return res, tx.Commit(ctx)
}

// CalendarRange returns the occupying segment rows for every room/date in
// [from, to) for one property.
func (r *Repo) CalendarRange(ctx context.Context, tenantID, propertyID string, from, to time.Time) ([]CalendarSegment, error) {
	tx, err := postgres.TenantTx(ctx, r.DB, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT property_id, room_id, business_date, reservation_id, guest_name,
		       status, source, color_key, arrival, last_night
		FROM calendar_segments
		WHERE property_id = $1 AND business_date >= $2::date AND business_date < $3::date
		ORDER BY room_id, business_date`,
		propertyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalendarSegment
	for rows.Next() {
		var s CalendarSegment
		var date time.Time
		if err := rows.Scan(&s.PropertyID, &s.RoomID, &date, &s.ReservationID, &s.GuestName,
			&s.Status, &s.Source, &s.ColorKey, &s.Arrival, &s.LastNight); err != nil {
			return nil, err
		}
		s.Date = date.Format(DateFormat)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

func (r *Repo) OccupancyRange(ctx context.Context, tenantID, propertyID string, from, to time.Time) ([]DailyOccupancy, error) {
	tx, err := postgres.TenantTx(ctx, r.DB, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT property_id, business_date, occupied, available, arrivals, departures
		FROM daily_occupancy
		WHERE property_id = $1 AND business_date >= $2::date AND business_date < $3::date
		ORDER BY business_date`,
		propertyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyOccupancy
	for rows.Next() {
		var d DailyOccupancy
		var date time.Time
		if err := rows.Scan(&d.PropertyID, &date, &d.Occupied, &d.Available, &d.Arrivals, &d.Departures); err != nil {
			return nil, err
		}
		d.Date = date.Format(DateFormat)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

// SuggestRooms lists rooms of a type with no active block overlapping the
// stay. Advisory only: the UI uses it to offer a room, the commit path
// relies on the exclusion constraint alone.
func (r *Repo) SuggestRooms(ctx context.Context, tenantID, propertyID, roomTypeID string, checkIn, checkOut time.Time) ([]Room, error) {
	tx, err := postgres.TenantTx(ctx, r.DB, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT rm.id, rm.tenant_id, rm.property_id, rm.room_type_id, rm.room_number
		FROM rooms rm
		WHERE rm.property_id = $1 AND rm.room_type_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM room_blocks b
			WHERE b.room_id = rm.id AND b.active
			  AND b.stay && daterange($3::date, $4::date, '[)')
		  )
		ORDER BY rm.room_number`,
		propertyID, roomTypeID, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var rm Room
		if err := rows.Scan(&rm.ID, &rm.TenantID, &rm.PropertyID, &rm.RoomTypeID, &rm.Number); err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

// ListTenants reads the tenant catalog (not under RLS); used by the
// no-show sweeper to fan out per-tenant transactions.
func (r *Repo) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.DB.Query(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
