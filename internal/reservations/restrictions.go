package reservations

import (
	"context"
	"fmt"
	"time"
)

// CheckResult is the outcome of a restriction check. Allowed is true iff
// Violations is empty. The check is advisory-but-mandatory: the command
// layer runs it before allocating, but the exclusion constraint stays the
// final authority for room-level conflicts.
type CheckResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

// RestrictionChecker fetches the restriction rows touching a stay and
// evaluates them. Fetching goes through a Querier so the command layer can
// run the check inside its own transaction.
type RestrictionChecker struct{}

func (c *RestrictionChecker) Check(ctx context.Context, q Querier, propertyID, roomTypeID, ratePlanID string, checkIn, checkOut time.Time) (CheckResult, error) {
	rows, err := fetchRestrictions(ctx, q, propertyID, roomTypeID, ratePlanID, checkIn, checkOut)
	if err != nil {
		return CheckResult{}, err
	}
	return EvaluateRestrictions(rows, checkIn, checkOut), nil
}

func fetchRestrictions(ctx context.Context, q Querier, propertyID, roomTypeID, ratePlanID string, checkIn, checkOut time.Time) ([]Restriction, error) {
	rows, err := q.Query(ctx, `
		SELECT id, tenant_id, property_id, restriction_date, room_type_id, rate_plan_id,
		       stop_sell, closed_to_arrival, closed_to_departure, min_stay, max_stay
		FROM restrictions
		WHERE property_id = $1
		  AND restriction_date >= $2::date AND restriction_date < $3::date
		  AND (room_type_id IS NULL OR room_type_id = $4)
		  AND (rate_plan_id IS NULL OR rate_plan_id = $5)`,
		propertyID, checkIn, checkOut, roomTypeID, ratePlanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Restriction
	for rows.Next() {
		var r Restriction
		if err := rows.Scan(&r.ID, &r.TenantID, &r.PropertyID, &r.Date, &r.RoomTypeID, &r.RatePlanID,
			&r.StopSell, &r.ClosedToArrival, &r.ClosedToDeparture, &r.MinStay, &r.MaxStay); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EvaluateRestrictions applies the rules against a half-open stay range.
// For each calendar date the most specific matching row wins
// (2 x room type + 1 x rate plan). Rules:
//   - stop-sell: violation if set on any night of the stay
//   - closed-to-arrival: violation only if set on the check-in date
//   - closed-to-departure: CTD on date X forbids a departure on X+1, i.e.
//     the flag is checked on the date immediately preceding check-out
//   - min/max stay: violation if the night count falls outside the bound
//     on any date carrying that bound
func EvaluateRestrictions(rules []Restriction, checkIn, checkOut time.Time) CheckResult {
	nights := nightCount(checkIn, checkOut)
	lastNight := checkOut.AddDate(0, 0, -1)

	var violations []string
	seen := map[string]bool{}
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			violations = append(violations, v)
		}
	}

	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		r, ok := mostSpecificFor(rules, d)
		if !ok {
			continue
		}
		day := d.Format(DateFormat)
		if r.StopSell {
			add(fmt.Sprintf("stop-sell in effect on %s", day))
		}
		if r.ClosedToArrival && sameDate(d, checkIn) {
			add(fmt.Sprintf("closed to arrival on %s", day))
		}
		if r.ClosedToDeparture && sameDate(d, lastNight) {
			add(fmt.Sprintf("closed to departure on %s", checkOut.Format(DateFormat)))
		}
		if r.MinStay != nil && nights < *r.MinStay {
			add(fmt.Sprintf("minimum stay of %d nights on %s", *r.MinStay, day))
		}
		if r.MaxStay != nil && nights > *r.MaxStay {
			add(fmt.Sprintf("maximum stay of %d nights on %s", *r.MaxStay, day))
		}
	}

	return CheckResult{Allowed: len(violations) == 0, Violations: violations}
}

func mostSpecificFor(rules []Restriction, date time.Time) (Restriction, bool) {
	best := -1
	var pick Restriction
	for _, r := range rules {
		if !sameDate(r.Date, date) {
			continue
		}
		if s := r.Specificity(); s > best {
			best = s
			pick = r
		}
	}
	return pick, best >= 0
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
