package reservations

import (
	"strings"
	"time"
)

// DateFormat is the wire format for business dates. All stay ranges are
// half-open: check-out day is not a night of the stay.
const DateFormat = "2006-01-02"

// GuestSnapshot is denormalized onto the reservation so the record stays
// self-describing even if the guest profile is deleted later.
type GuestSnapshot struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (g GuestSnapshot) DisplayName() string {
	return strings.TrimSpace(g.FirstName + " " + g.LastName)
}

type Reservation struct {
	ID            string
	TenantID      string
	PropertyID    string
	GuestID       *string
	Guest         GuestSnapshot
	RoomTypeID    string
	RoomID        *string // nil until a physical room is assigned
	RatePlanID    string
	CheckIn       time.Time
	CheckOut      time.Time
	Status        Status
	PrevStatus    *Status // recorded on cancel / no-show
	Source        string
	RateCents     int // nightly
	SubtotalCents int
	TaxCents      int
	FeeCents      int
	TotalCents    int
	Version       int
	CancelReason  *string
	CancelledAt   *time.Time
	CancelledBy   *string
	CheckedInAt   *time.Time
	CheckedInBy   *string
	CheckedOutAt  *time.Time
	CheckedOutBy  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *Reservation) Nights() int {
	return nightCount(r.CheckIn, r.CheckOut)
}

func nightCount(checkIn, checkOut time.Time) int {
	return int(checkOut.Sub(checkIn).Hours() / 24)
}

type BlockType string

const (
	BlockReservation BlockType = "RESERVATION"
	BlockMaintenance BlockType = "MAINTENANCE"
	BlockHold        BlockType = "HOLD"
)

// RoomBlock is the unit of physical occupancy. Overlap prevention lives in
// the store's exclusion constraint, never here.
type RoomBlock struct {
	ID            string
	TenantID      string
	RoomID        string
	ReservationID *string // nil for maintenance/hold blocks
	Type          BlockType
	CheckIn       time.Time
	CheckOut      time.Time
	Active        bool
	CreatedAt     time.Time
}

type FolioStatus string

const (
	FolioOpen   FolioStatus = "OPEN"
	FolioClosed FolioStatus = "CLOSED"
)

type Folio struct {
	ID            string
	TenantID      string
	ReservationID string
	Status        FolioStatus
	BalanceCents  int
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// Restriction is a calendar-addressable booking rule. Scope: room type +
// rate plan beats room type only beats property-wide.
type Restriction struct {
	ID                string
	TenantID          string
	PropertyID        string
	Date              time.Time
	RoomTypeID        *string
	RatePlanID        *string
	StopSell          bool
	ClosedToArrival   bool
	ClosedToDeparture bool
	MinStay           *int
	MaxStay           *int
}

func (r Restriction) Specificity() int {
	n := 0
	if r.RoomTypeID != nil {
		n += 2
	}
	if r.RatePlanID != nil {
		n++
	}
	return n
}

type Room struct {
	ID         string `json:"id"`
	TenantID   string `json:"-"`
	PropertyID string `json:"property_id"`
	RoomTypeID string `json:"room_type_id"`
	Number     string `json:"number"`
}

// CalendarSegment is the read-model row for one room on one business date.
// Derived from events, always rebuildable by replay.
type CalendarSegment struct {
	PropertyID    string `json:"property_id"`
	RoomID        string `json:"room_id"`
	Date          string `json:"business_date"` // DateFormat
	ReservationID string `json:"reservation_id"`
	GuestName     string `json:"guest_name"`
	Status        Status `json:"status"`
	Source        string `json:"source"`
	ColorKey      string `json:"color_key"`
	Arrival       bool   `json:"arrival"`    // date == check-in
	LastNight     bool   `json:"last_night"` // date == check-out - 1 day
}

type DailyOccupancy struct {
	PropertyID string `json:"property_id"`
	Date       string `json:"business_date"`
	Occupied   int    `json:"occupied"`
	Available  int    `json:"available"`
	Arrivals   int    `json:"arrivals"`
	Departures int    `json:"departures"`
}
