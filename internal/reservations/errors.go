package reservations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound            = errors.New("not found for tenant")
	ErrRoomAlreadyBooked   = errors.New("room already booked for the requested dates")
	ErrRoomOutOfOrder      = errors.New("room is out of order")
	ErrConcurrencyConflict = errors.New("reservation was modified concurrently, reload and retry")
	ErrNotMovable          = errors.New("reservation dates and room can no longer change")
	ErrInvalidStay         = errors.New("check-out date must be after check-in date")
)

// InvalidTransitionError is returned when the state machine denies a
// (from, to) pair. From/To are kept so callers can render the exact pair.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// RestrictionViolationError carries the deduplicated list of violated rules.
type RestrictionViolationError struct {
	Violations []string
}

func (e *RestrictionViolationError) Error() string {
	return "booking not permitted: " + strings.Join(e.Violations, "; ")
}

// exclusion_violation, raised by the room_blocks overlap constraint
const sqlstateExclusionViolation = "23P01"

// conflictErr maps the store's exclusion-constraint violation to the domain
// conflict error. Anything else passes through unchanged.
func conflictErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlstateExclusionViolation {
		return ErrRoomAlreadyBooked
	}
	return err
}
