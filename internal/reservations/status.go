package reservations

type Status string

const (
	StatusConfirmed  Status = "CONFIRMED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusCheckedOut Status = "CHECKED_OUT"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// AllStatuses lists every reservation status. Kept in sync with validNext.
var AllStatuses = []Status{StatusConfirmed, StatusCheckedIn, StatusCheckedOut, StatusCancelled, StatusNoShow}

var validNext = map[Status]map[Status]bool{
	StatusConfirmed:  {StatusCheckedIn: true, StatusCancelled: true, StatusNoShow: true},
	StatusCheckedIn:  {StatusCheckedOut: true},
	StatusCheckedOut: {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

// CanTransition is total over all status pairs; self-transitions are denied.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Immovable reports whether the reservation's dates and room are frozen.
// This is separate from the transition table: CHECKED_IN still allows a
// status change (to CHECKED_OUT) but no longer allows a move or resize.
func Immovable(s Status) bool {
	return s != StatusConfirmed
}

// ColorKey maps a status to the display color used by calendar views.
func (s Status) ColorKey() string {
	switch s {
	case StatusConfirmed:
		return "blue"
	case StatusCheckedIn:
		return "green"
	case StatusCheckedOut:
		return "gray"
	case StatusCancelled:
		return "red"
	case StatusNoShow:
		return "orange"
	}
	return "gray"
}
