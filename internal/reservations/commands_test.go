package reservations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckMoveTarget(t *testing.T) {
	res := &Reservation{PropertyID: "p1", RoomTypeID: "rt1"}

	// a room of another property does not exist for this booking
	assert.ErrorIs(t, checkMoveTarget(res, &Room{PropertyID: "p2", RoomTypeID: "rt1"}), ErrNotFound)

	assert.NoError(t, checkMoveTarget(res, &Room{PropertyID: "p1", RoomTypeID: "rt1"}))
	// cross-type moves are allowed, the restriction check re-runs on the
	// destination type
	assert.NoError(t, checkMoveTarget(res, &Room{PropertyID: "p1", RoomTypeID: "rt2"}))
}
