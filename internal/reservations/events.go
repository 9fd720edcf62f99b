package reservations

import (
	"encoding/json"
	"time"
)

const (
	EventReservationCreated      = "ReservationCreated"
	EventReservationCancelled    = "ReservationCancelled"
	EventReservationCheckedIn    = "ReservationCheckedIn"
	EventReservationCheckedOut   = "ReservationCheckedOut"
	EventReservationNoShow       = "ReservationNoShow"
	EventReservationRoomMoved    = "ReservationRoomMoved"
	EventReservationDatesChanged = "ReservationDatesChanged"
	EventRoomOutOfOrder          = "RoomOutOfOrder"
	EventRoomRestored            = "RoomRestored"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g. "pms-api"
	TenantID      string          `json:"tenant_id"`
	CorrelationID string          `json:"correlation_id,omitempty"` // reservation id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload types ----

// ReservationPayload describes a reservation change fully enough for the
// projector to rebuild the affected calendar span without querying the
// source-of-truth row. Prev* fields are set on moves and resizes so the old
// span can be cleared.
type ReservationPayload struct {
	ReservationID string  `json:"reservation_id"`
	TenantID      string  `json:"tenant_id"`
	PropertyID    string  `json:"property_id"`
	GuestName     string  `json:"guest_name"`
	RoomID        *string `json:"room_id,omitempty"`
	RoomTypeID    string  `json:"room_type_id"`
	RatePlanID    string  `json:"rate_plan_id"`
	CheckIn       string  `json:"check_in"`  // DateFormat
	CheckOut      string  `json:"check_out"` // DateFormat, exclusive
	Status        Status  `json:"status"`
	PrevStatus    Status  `json:"prev_status,omitempty"`
	Source        string  `json:"source"`
	Version       int     `json:"version"`
	TotalCents    int     `json:"total_cents"`
	PrevRoomID    *string `json:"prev_room_id,omitempty"`
	PrevCheckIn   string  `json:"prev_check_in,omitempty"`
	PrevCheckOut  string  `json:"prev_check_out,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

type RoomBlockPayload struct {
	BlockID  string `json:"block_id"`
	TenantID string `json:"tenant_id"`
	RoomID   string `json:"room_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Reason   string `json:"reason,omitempty"`
}

// payloadFor builds the event payload from a committed-to-be reservation row.
func payloadFor(res *Reservation) ReservationPayload {
	return ReservationPayload{
		ReservationID: res.ID,
		TenantID:      res.TenantID,
		PropertyID:    res.PropertyID,
		GuestName:     res.Guest.DisplayName(),
		RoomID:        res.RoomID,
		RoomTypeID:    res.RoomTypeID,
		RatePlanID:    res.RatePlanID,
		CheckIn:       res.CheckIn.Format(DateFormat),
		CheckOut:      res.CheckOut.Format(DateFormat),
		Status:        res.Status,
		Source:        res.Source,
		Version:       res.Version,
		TotalCents:    res.TotalCents,
	}
}
