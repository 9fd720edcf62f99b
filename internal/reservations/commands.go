package reservations

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostwell/pms-reservations/internal/audit"
	"github.com/hostwell/pms-reservations/internal/outbox"
	"github.com/hostwell/pms-reservations/internal/postgres"
)

// Commands orchestrates every reservation mutation. Each command is one
// transaction: bind tenant -> validate status -> check restrictions ->
// allocate -> version-guarded row update -> folio -> outbox append ->
// commit. Any typed failure aborts the whole transaction; no partial
// mutation is ever visible. The audit row goes in after commit and is
// best-effort.
type Commands struct {
	DB      *pgxpool.Pool
	Alloc   Allocator
	Checker RestrictionChecker
	Audit   *audit.Log
	Service string // producer name stamped on event envelopes
}

type CreateInput struct {
	TenantID   string
	PropertyID string
	Actor      string
	GuestID    *string
	Guest      GuestSnapshot
	RoomTypeID string
	RoomID     *string // optional; room can be assigned later via MoveRoom
	RatePlanID string
	CheckIn    time.Time
	CheckOut   time.Time
	Source     string
	RateCents  int
	TaxCents   int
	FeeCents   int
}

func (c *Commands) Create(ctx context.Context, in CreateInput) (*Reservation, error) {
	if !in.CheckOut.After(in.CheckIn) {
		return nil, ErrInvalidStay
	}

	tx, err := postgres.TenantTx(ctx, c.DB, in.TenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	check, err := c.Checker.Check(ctx, tx, in.PropertyID, in.RoomTypeID, in.RatePlanID, in.CheckIn, in.CheckOut)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return nil, &RestrictionViolationError{Violations: check.Violations}
	}

	nights := nightCount(in.CheckIn, in.CheckOut)
	res := &Reservation{
		ID:            uuid.NewString(),
		TenantID:      in.TenantID,
		PropertyID:    in.PropertyID,
		GuestID:       in.GuestID,
		Guest:         in.Guest,
		RoomTypeID:    in.RoomTypeID,
		RoomID:        in.RoomID,
		RatePlanID:    in.RatePlanID,
		CheckIn:       in.CheckIn,
		CheckOut:      in.CheckOut,
		Status:        StatusConfirmed,
		Source:        in.Source,
		RateCents:     in.RateCents,
		SubtotalCents: in.RateCents * nights,
		TaxCents:      in.TaxCents,
		FeeCents:      in.FeeCents,
		Version:       1,
	}
	res.TotalCents = res.SubtotalCents + res.TaxCents + res.FeeCents

	_, err = tx.Exec(ctx, `
		INSERT INTO reservations (
			id, tenant_id, property_id, guest_id,
			guest_first_name, guest_last_name, guest_email, guest_phone,
			room_type_id, room_id, rate_plan_id,
			check_in, check_out, status, source,
			rate_cents, subtotal_cents, tax_cents, fee_cents, total_cents, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		res.ID, res.TenantID, res.PropertyID, res.GuestID,
		res.Guest.FirstName, res.Guest.LastName, res.Guest.Email, res.Guest.Phone,
		res.RoomTypeID, res.RoomID, res.RatePlanID,
		res.CheckIn, res.CheckOut, res.Status, res.Source,
		res.RateCents, res.SubtotalCents, res.TaxCents, res.FeeCents, res.TotalCents, res.Version)
	if err != nil {
		return nil, err
	}

	if res.RoomID != nil {
		block := &RoomBlock{
			TenantID:      res.TenantID,
			RoomID:        *res.RoomID,
			ReservationID: &res.ID,
			Type:          BlockReservation,
			CheckIn:       res.CheckIn,
			CheckOut:      res.CheckOut,
		}
		if err := c.Alloc.Allocate(ctx, tx, block); err != nil {
			return nil, err
		}
	}

	if err := openFolio(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := c.appendEvent(ctx, tx, EventReservationCreated, res.ID, payloadFor(res)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.Audit.Record(ctx, audit.Entry{
		TenantID: in.TenantID, Actor: in.Actor, Action: "reservation.create",
		EntityType: "reservation", EntityID: res.ID,
		Detail: map[string]any{"check_in": res.CheckIn.Format(DateFormat), "check_out": res.CheckOut.Format(DateFormat), "room_id": res.RoomID},
	})
	return res, nil
}

type CancelInput struct {
	TenantID      string
	ReservationID string
	Actor         string
	Version       int
	Reason        string
}

func (c *Commands) Cancel(ctx context.Context, in CancelInput) (*Reservation, error) {
	tx, err := postgres.TenantTx(ctx, c.DB, in.TenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := loadReservation(ctx, tx, in.ReservationID, true)
	if err != nil {
		return nil, err
	}
	if !CanTransition(res.Status, StatusCancelled) {
		return nil, &InvalidTransitionError{From: res.Status, To: StatusCancelled}
	}

	prev := res.Status
	ct, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = $3, previous_status = $4, cancel_reason = $5,
		    cancelled_at = now(), cancelled_by = $6,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2`,
		in.ReservationID, in.Version, StatusCancelled, prev, in.Reason, in.Actor)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrConcurrencyConflict
	}

	if err := c.Alloc.ReleaseForReservation(ctx, tx, res.ID); err != nil {
		return nil, err
	}
	if err := closeFolio(ctx, tx, res.ID); err != nil {
		return nil, err
	}

	res.Status = StatusCancelled
	res.PrevStatus = &prev
	res.Version = in.Version + 1
	p := payloadFor(res)
	p.PrevStatus = prev
	p.Reason = in.Reason
	if err := c.appendEvent(ctx, tx, EventReservationCancelled, res.ID, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.Audit.Record(ctx, audit.Entry{
		TenantID: in.TenantID, Actor: in.Actor, Action: "reservation.cancel",
		EntityType: "reservation", EntityID: res.ID,
		Detail: map[string]any{"reason": in.Reason, "previous_status": prev},
	})
	return res, nil
}

type StatusInput struct {
	TenantID      string
	ReservationID string
	Actor         string
	Version       int
}

func (c *Commands) CheckIn(ctx context.Context, in StatusInput) (*Reservation, error) {
	return c.statusChange(ctx, in, StatusCheckedIn, EventReservationCheckedIn, "reservation.check_in")
}

func (c *Commands) CheckOut(ctx context.Context, in StatusInput) (*Reservation, error) {
	return c.statusChange(ctx, in, StatusCheckedOut, EventReservationCheckedOut, "reservation.check_out")
}

func (c *Commands) statusChange(ctx context.Context, in StatusInput, to Status, eventType, action string) (*Reservation, error) {
	tx, err := postgres.TenantTx(ctx, c.DB, in.TenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := loadReservation(ctx, tx, in.ReservationID, true)
	if err != nil {
		return nil, err
	}
	if !CanTransition(res.Status, to) {
		return nil, &InvalidTransitionError{From: res.Status, To: to}
	}

	prev := res.Status
	var ct pgconn.CommandTag
	switch to {
	case StatusCheckedIn:
		ct, err = tx.Exec(ctx, `
			UPDATE reservations
			SET status = $3, checked_in_at = now(), checked_in_by = $4,
			    version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $2`,
			in.ReservationID, in.Version, to, in.Actor)
	case StatusCheckedOut:
		ct, err = tx.Exec(ctx, `
			UPDATE reservations
			SET status = $3, checked_out_at = now(), checked_out_by = $4,
			    version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $2`,
			in.ReservationID, in.Version, to, in.Actor)
	}
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrConcurrencyConflict
	}

	if to == StatusCheckedOut {
		// departure frees the room and settles the bill
		if err := c.Alloc.ReleaseForReservation(ctx, tx, res.ID); err != nil {
			return nil, err
		}
		if err := closeFolio(ctx, tx, res.ID); err != nil {
			return nil, err
		}
	}

	res.Status = to
	res.Version = in.Version + 1
	p := payloadFor(res)
	p.PrevStatus = prev
	if err := c.appendEvent(ctx, tx, eventType, res.ID, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.Audit.Record(ctx, audit.Entry{
		TenantID: in.TenantID, Actor: in.Actor, Action: action,
		EntityType: "reservation", EntityID: res.ID,
		Detail: map[string]any{"previous_status": prev},
	})
	return res, nil
}

type MoveInput struct {
	TenantID      string
	ReservationID string
	Actor         string
	Version       int
	NewRoomID     string
}

// checkMoveTarget validates the destination room of a move: it must belong
// to the reservation's property. Cross-type moves are allowed; the caller
// re-runs the restriction check against the destination room's type.
func checkMoveTarget(res *Reservation, room *Room) error {
	if room.PropertyID != res.PropertyID {
		return ErrNotFound
	}
	return nil
}

// MoveRoom reassigns the physical room, keeping the dates. Also used for
// the initial assignment of a reservation created without a room. The new
// block is allocated before the old one is deactivated, so a conflict on
// the new room aborts the transaction with the original booking intact.
func (c *Commands) MoveRoom(ctx context.Context, in MoveInput) (*Reservation, error) {
	tx, err := postgres.TenantTx(ctx, c.DB, in.TenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := loadReservation(ctx, tx, in.ReservationID, true)
	if err != nil {
		return nil, err
	}
	if Immovable(res.Status) {
		return nil, ErrNotMovable
	}

	room, err := loadRoom(ctx, tx, in.NewRoomID)
	if err != nil {
		return nil, err
	}
	if err := checkMoveTarget(res, room); err != nil {
		return nil, err
	}

	check, err := c.Checker.Check(ctx, tx, res.PropertyID, room.RoomTypeID, res.RatePlanID, res.CheckIn, res.CheckOut)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return nil, &RestrictionViolationError{Violations: check.Violations}
	}

	block := &RoomBlock{
		TenantID:      res.TenantID,
		RoomID:        in.NewRoomID,
		ReservationID: &res.ID,
		Type:          BlockReservation,
		CheckIn:       res.CheckIn,
		CheckOut:      res.CheckOut,
	}
	if err := c.Alloc.Allocate(ctx, tx, block); err != nil {
		return nil, err
	}
	if err := c.Alloc.releaseOthers(ctx, tx, res.ID, block.ID); err != nil {
		return nil, err
	}

	ct, err := tx.Exec(ctx, `
		UPDATE reservations
		SET room_id = $3, room_type_id = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2`,
		in.ReservationID, in.Version, in.NewRoomID, room.RoomTypeID)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrConcurrencyConflict
	}

	prevRoom := res.RoomID
	res.RoomID = &in.NewRoomID
	res.RoomTypeID = room.RoomTypeID
	res.Version = in.Version + 1
	p := payloadFor(res)
	p.PrevRoomID = prevRoom
	if err := c.appendEvent(ctx, tx, EventReservationRoomMoved, res.ID, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.Audit.Record(ctx, audit.Entry{
		TenantID: in.TenantID, Actor: in.Actor, Action: "reservation.move_room",
		EntityType: "reservation", EntityID: res.ID,
		Detail: map[string]any{"from_room": prevRoom, "to_room": in.NewRoomID},
	})
	return res, nil
}

type ResizeInput struct {
	TenantID      string
	ReservationID string
	Actor         string
	Version       int
	NewCheckIn    time.Time
	NewCheckOut   time.Time
}

// Resize changes the stay dates. Pricing is recomputed from the stored
// nightly rate. Same allocate-new-then-deactivate-old discipline as
// MoveRoom; overlapping blocks of the same reservation do not trip the
// exclusion constraint, so extending a stay in place is safe.
func (c *Commands) Resize(ctx context.Context, in ResizeInput) (*Reservation, error) {
	if !in.NewCheckOut.After(in.NewCheckIn) {
		return nil, ErrInvalidStay
	}

	tx, err := postgres.TenantTx(ctx, c.DB, in.TenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := loadReservation(ctx, tx, in.ReservationID, true)
	if err != nil {
		return nil, err
	}
	if Immovable(res.Status) {
		return nil, ErrNotMovable
	}

	check, err := c.Checker.Check(ctx, tx, res.PropertyID, res.RoomTypeID, res.RatePlanID, in.NewCheckIn, in.NewCheckOut)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return nil, &RestrictionViolationError{Violations: check.Violations}
	}

	if res.RoomID != nil {
		block := &RoomBlock{
			TenantID:      res.TenantID,
			RoomID:        *res.RoomID,
			ReservationID: &res.ID,
			Type:          BlockReservation,
			CheckIn:       in.NewCheckIn,
			CheckOut:      in.NewCheckOut,
		}
		if err := c.Alloc.Allocate(ctx, tx, block); err != nil {
			return nil, err
		}
		if err := c.Alloc.releaseOthers(ctx, tx, res.ID, block.ID); err != nil {
			return nil, err
		}
	}

	nights := nightCount(in.NewCheckIn, in.NewCheckOut)
	subtotal := res.RateCents * nights
	total := subtotal + res.TaxCents + res.FeeCents
	ct, err := tx.Exec(ctx, `
		UPDATE reservations
		SET check_in = $3, check_out = $4, subtotal_cents = $5, total_cents = $6,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2`,
		in.ReservationID, in.Version, in.NewCheckIn, in.NewCheckOut, subtotal, total)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrConcurrencyConflict
	}

	prevIn, prevOut := res.CheckIn, res.CheckOut
	res.CheckIn, res.CheckOut = in.NewCheckIn, in.NewCheckOut
	res.SubtotalCents, res.TotalCents = subtotal, total
	res.Version = in.Version + 1
	p := payloadFor(res)
	p.PrevCheckIn = prevIn.Format(DateFormat)
	p.PrevCheckOut = prevOut.Format(DateFormat)
	if err := c.appendEvent(ctx, tx, EventReservationDatesChanged, res.ID, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.Audit.Record(ctx, audit.Entry{
		TenantID: in.TenantID, Actor: in.Actor, Action: "reservation.resize",
		EntityType: "reservation", EntityID: res.ID,
		Detail: map[string]any{
			"from": prevIn.Format(DateFormat) + "/" + prevOut.Format(DateFormat),
			"to":   in.NewCheckIn.Format(DateFormat) + "/" + in.NewCheckOut.Format(DateFormat),
		},
	})
	return res, nil
}

// MarkNoShow flips a confirmed reservation whose arrival date passed
// without a check-in. Driven by the sweeper, so the version guard uses the
// version read in this same transaction; the FOR UPDATE row lock keeps it
// linearizable against concurrent commands.
func (c *Commands) MarkNoShow(ctx context.Context, tenantID, reservationID, actor string) (*Reservation, error) {
	tx, err := postgres.TenantTx(ctx, c.DB, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := loadReservation(ctx, tx, reservationID, true)
	if err != nil {
		return nil, err
	}
	if !CanTransition(res.Status, StatusNoShow) {
		return nil, &InvalidTransitionError{From: res.Status, To: StatusNoShow}
	}

	prev := res.Status
	ct, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = $3, previous_status = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2`,
		reservationID, res.Version, StatusNoShow, prev)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrConcurrencyConflict
	}

	if err := c.Alloc.ReleaseForReservation(ctx, tx, res.ID); err != nil {
		return nil, err
	}
	if err := closeFolio(ctx, tx, res.ID); err != nil {
		return nil, err
	}

	res.PrevStatus = &prev
	res.Status = StatusNoShow
	res.Version++
	p := payloadFor(res)
	p.PrevStatus = prev
	if err := c.appendEvent(ctx, tx, EventReservationNoShow, res.ID, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.Audit.Record(ctx, audit.Entry{
		TenantID: tenantID, Actor: actor, Action: "reservation.no_show",
		EntityType: "reservation", EntityID: res.ID,
		Detail: map[string]any{"check_in": res.CheckIn.Format(DateFormat)},
	})
	return res, nil
}

// SweepNoShows finds confirmed reservations across all tenants whose
// check-in date is before asOf and marks them NO_SHOW, one transaction
// per reservation so a single failure cannot poison the batch.
func (c *Commands) SweepNoShows(ctx context.Context, asOf time.Time) (int, error) {
	repo := &Repo{DB: c.DB}
	tenants, err := repo.ListTenants(ctx)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, tenant := range tenants {
		ids, err := c.noShowCandidates(ctx, tenant, asOf)
		if err != nil {
			return marked, err
		}
		for _, id := range ids {
			if _, err := c.MarkNoShow(ctx, tenant, id, "system/no-show-sweep"); err != nil {
				// raced with a check-in or cancel; next tick re-evaluates
				continue
			}
			marked++
		}
	}
	return marked, nil
}

func (c *Commands) noShowCandidates(ctx context.Context, tenantID string, asOf time.Time) ([]string, error) {
	tx, err := postgres.TenantTx(ctx, c.DB, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id FROM reservations
		WHERE status = $1 AND check_in < $2::date`,
		StatusConfirmed, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, tx.Commit(ctx)
}

// PlaceOutOfOrder takes a room out of service for a date range via a
// maintenance block, claimed through the same exclusion constraint as
// bookings so it conflicts with existing reservations.
func (c *Commands) PlaceOutOfOrder(ctx context.Context, tenantID, roomID, actor, reason string, from, to time.Time) (*RoomBlock, error) {
	tx, err := postgres.TenantTx(ctx, c.DB, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	block := &RoomBlock{
		TenantID: tenantID,
		RoomID:   roomID,
		Type:     BlockMaintenance,
		CheckIn:  from,
		CheckOut: to,
	}
	if err := c.Alloc.Allocate(ctx, tx, block); err != nil {
		return nil, err
	}

	p := RoomBlockPayload{
		BlockID: block.ID, TenantID: tenantID, RoomID: roomID,
		From: from.Format(DateFormat), To: to.Format(DateFormat), Reason: reason,
	}
	if err := c.appendEvent(ctx, tx, EventRoomOutOfOrder, roomID, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.Audit.Record(ctx, audit.Entry{
		TenantID: tenantID, Actor: actor, Action: "room.out_of_order",
		EntityType: "room", EntityID: roomID,
		Detail: map[string]any{"from": p.From, "to": p.To, "reason": reason},
	})
	return block, nil
}

// RestoreRoom deactivates maintenance blocks overlapping the range.
func (c *Commands) RestoreRoom(ctx context.Context, tenantID, roomID, actor string, from, to time.Time) (int, error) {
	tx, err := postgres.TenantTx(ctx, c.DB, tenantID)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := c.Alloc.ReleaseMaintenance(ctx, tx, roomID, from, to)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	p := RoomBlockPayload{
		TenantID: tenantID, RoomID: roomID,
		From: from.Format(DateFormat), To: to.Format(DateFormat),
	}
	if err := c.appendEvent(ctx, tx, EventRoomRestored, roomID, p); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	c.Audit.Record(ctx, audit.Entry{
		TenantID: tenantID, Actor: actor, Action: "room.restore",
		EntityType: "room", EntityID: roomID,
		Detail: map[string]any{"from": p.From, "to": p.To, "blocks": n},
	})
	return n, nil
}

// ---- shared helpers ----

func (c *Commands) appendEvent(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      c.Service,
		CorrelationID: aggregateID,
		Payload:       raw,
	}
	if p, ok := payload.(ReservationPayload); ok {
		env.TenantID = p.TenantID
	} else if p, ok := payload.(RoomBlockPayload); ok {
		env.TenantID = p.TenantID
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return outbox.Append(ctx, tx, env.TenantID, aggregateID, eventType, value)
}

func openFolio(ctx context.Context, tx pgx.Tx, res *Reservation) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO folios (id, tenant_id, reservation_id, status, balance_cents)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), res.TenantID, res.ID, FolioOpen, res.TotalCents)
	return err
}

func closeFolio(ctx context.Context, tx pgx.Tx, reservationID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE folios SET status = $2, closed_at = now()
		WHERE reservation_id = $1 AND status = $3`,
		reservationID, FolioClosed, FolioOpen)
	return err
}
