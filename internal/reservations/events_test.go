package reservations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadFor(t *testing.T) {
	room := "room-1"
	res := &Reservation{
		ID:         "res-1",
		TenantID:   "t1",
		PropertyID: "p1",
		Guest:      GuestSnapshot{FirstName: "Ada", LastName: "Lovelace"},
		RoomTypeID: "rt1",
		RoomID:     &room,
		RatePlanID: "rp1",
		CheckIn:    day("2025-06-10"),
		CheckOut:   day("2025-06-13"),
		Status:     StatusConfirmed,
		Source:     "direct",
		Version:    1,
		TotalCents: 36000,
	}

	p := payloadFor(res)
	assert.Equal(t, "res-1", p.ReservationID)
	assert.Equal(t, "Ada Lovelace", p.GuestName)
	assert.Equal(t, "2025-06-10", p.CheckIn)
	assert.Equal(t, "2025-06-13", p.CheckOut)
	assert.Equal(t, StatusConfirmed, p.Status)
	assert.Equal(t, 36000, p.TotalCents)
	// prev fields stay zero until a command sets them
	assert.Nil(t, p.PrevRoomID)
	assert.Empty(t, p.PrevCheckIn)
}

func TestNightCount(t *testing.T) {
	assert.Equal(t, 1, nightCount(day("2025-06-10"), day("2025-06-11")))
	assert.Equal(t, 3, nightCount(day("2025-06-10"), day("2025-06-13")))
	assert.Equal(t, 0, nightCount(day("2025-06-10"), day("2025-06-10")))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", GuestSnapshot{FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
	assert.Equal(t, "Ada", GuestSnapshot{FirstName: "Ada"}.DisplayName())
	assert.Equal(t, "", GuestSnapshot{}.DisplayName())
}
