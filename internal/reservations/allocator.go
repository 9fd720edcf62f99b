package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Allocator claims and releases room/date ranges inside the caller's
// transaction. It never computes overlap itself: the insert runs against
// the room_blocks exclusion constraint and a constraint violation is the
// conflict signal. Check-then-insert as two steps exists nowhere on the
// commit path.
type Allocator struct{}

// Allocate inserts an active block for the range. Returns
// ErrRoomOutOfOrder when an active maintenance block overlaps (probed
// first so the caller gets the more specific error), ErrRoomAlreadyBooked
// on any other overlap.
func (a Allocator) Allocate(ctx context.Context, q Querier, b *RoomBlock) error {
	if !b.CheckOut.After(b.CheckIn) {
		return ErrInvalidStay
	}

	if b.Type == BlockReservation {
		var n int
		err := q.QueryRow(ctx, `
			SELECT COUNT(*) FROM room_blocks
			WHERE room_id = $1 AND active AND block_type = $2
			  AND stay && daterange($3::date, $4::date, '[)')`,
			b.RoomID, BlockMaintenance, b.CheckIn, b.CheckOut).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrRoomOutOfOrder
		}
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Active = true
	_, err := q.Exec(ctx, `
		INSERT INTO room_blocks (id, tenant_id, room_id, reservation_id, block_type, stay, active)
		VALUES ($1, $2, $3, $4, $5, daterange($6::date, $7::date, '[)'), true)`,
		b.ID, b.TenantID, b.RoomID, b.ReservationID, b.Type, b.CheckIn, b.CheckOut)
	if err != nil {
		return conflictErr(err)
	}
	return nil
}

// ReleaseForReservation deactivates every active block of a reservation.
// Blocks are never deleted, only flagged inactive.
func (a Allocator) ReleaseForReservation(ctx context.Context, q Querier, reservationID string) error {
	_, err := q.Exec(ctx, `
		UPDATE room_blocks SET active = false
		WHERE reservation_id = $1 AND active`, reservationID)
	return err
}

// releaseOthers deactivates every active block of a reservation except the
// freshly allocated one. Used by move/resize: allocate new, then retire old.
func (a Allocator) releaseOthers(ctx context.Context, q Querier, reservationID, keepBlockID string) error {
	_, err := q.Exec(ctx, `
		UPDATE room_blocks SET active = false
		WHERE reservation_id = $1 AND active AND id <> $2`,
		reservationID, keepBlockID)
	return err
}

// ReleaseMaintenance deactivates active maintenance blocks on a room that
// overlap the given range, returning how many were restored.
func (a Allocator) ReleaseMaintenance(ctx context.Context, q Querier, roomID string, from, to time.Time) (int, error) {
	ct, err := q.Exec(ctx, `
		UPDATE room_blocks SET active = false
		WHERE room_id = $1 AND active AND block_type = $2
		  AND stay && daterange($3::date, $4::date, '[)')`,
		roomID, BlockMaintenance, from, to)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}
