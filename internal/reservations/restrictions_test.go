package reservations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func TestEvaluateNoRules(t *testing.T) {
	res := EvaluateRestrictions(nil, day("2025-06-10"), day("2025-06-12"))
	assert.True(t, res.Allowed)
	assert.Empty(t, res.Violations)
}

func TestEvaluateStopSellAnyNight(t *testing.T) {
	rules := []Restriction{{Date: day("2025-06-11"), StopSell: true}}

	res := EvaluateRestrictions(rules, day("2025-06-10"), day("2025-06-13"))
	require.False(t, res.Allowed)
	assert.Contains(t, res.Violations[0], "stop-sell")
	assert.Contains(t, res.Violations[0], "2025-06-11")

	// stop-sell on the check-out date does not block: not a night of the stay
	res = EvaluateRestrictions(rules, day("2025-06-08"), day("2025-06-11"))
	assert.True(t, res.Allowed)
}

func TestEvaluateClosedToArrival(t *testing.T) {
	rules := []Restriction{{Date: day("2025-06-10"), ClosedToArrival: true}}

	res := EvaluateRestrictions(rules, day("2025-06-10"), day("2025-06-12"))
	require.False(t, res.Allowed)
	assert.Contains(t, res.Violations[0], "closed to arrival")

	// CTA only binds the arrival date, staying through it is fine
	res = EvaluateRestrictions(rules, day("2025-06-09"), day("2025-06-12"))
	assert.True(t, res.Allowed)
}

func TestEvaluateClosedToDeparture(t *testing.T) {
	rules := []Restriction{{Date: day("2025-06-10"), ClosedToDeparture: true}}

	// CTD on 06-10 forbids departing on 06-11
	res := EvaluateRestrictions(rules, day("2025-06-08"), day("2025-06-11"))
	require.False(t, res.Allowed)
	assert.Contains(t, res.Violations[0], "closed to departure")
	assert.Contains(t, res.Violations[0], "2025-06-11")

	// departing on 06-10 itself is fine
	res = EvaluateRestrictions(rules, day("2025-06-08"), day("2025-06-10"))
	assert.True(t, res.Allowed)

	// staying through 06-10 is fine too
	res = EvaluateRestrictions(rules, day("2025-06-08"), day("2025-06-12"))
	assert.True(t, res.Allowed)
}

func TestEvaluateMinMaxStay(t *testing.T) {
	rules := []Restriction{{Date: day("2025-06-10"), MinStay: ptr(3), MaxStay: ptr(7)}}

	res := EvaluateRestrictions(rules, day("2025-06-10"), day("2025-06-12"))
	require.False(t, res.Allowed)
	assert.Contains(t, res.Violations[0], "minimum stay of 3")

	res = EvaluateRestrictions(rules, day("2025-06-10"), day("2025-06-20"))
	require.False(t, res.Allowed)
	assert.Contains(t, res.Violations[0], "maximum stay of 7")

	res = EvaluateRestrictions(rules, day("2025-06-10"), day("2025-06-14"))
	assert.True(t, res.Allowed)
}

func TestEvaluateMostSpecificWins(t *testing.T) {
	// property-wide stop-sell is overridden on the same date by a
	// room-type + rate-plan row that allows the sale
	rules := []Restriction{
		{Date: day("2025-06-10"), StopSell: true},
		{Date: day("2025-06-10"), RoomTypeID: ptr("rt1"), StopSell: true},
		{Date: day("2025-06-10"), RoomTypeID: ptr("rt1"), RatePlanID: ptr("rp1"), StopSell: false},
	}

	res := EvaluateRestrictions(rules, day("2025-06-10"), day("2025-06-11"))
	assert.True(t, res.Allowed)
}

func TestSpecificityRanking(t *testing.T) {
	property := Restriction{}
	ratePlanOnly := Restriction{RatePlanID: ptr("rp")}
	roomTypeOnly := Restriction{RoomTypeID: ptr("rt")}
	both := Restriction{RoomTypeID: ptr("rt"), RatePlanID: ptr("rp")}

	assert.Equal(t, 0, property.Specificity())
	assert.Equal(t, 1, ratePlanOnly.Specificity())
	assert.Equal(t, 2, roomTypeOnly.Specificity())
	assert.Equal(t, 3, both.Specificity())
	// room type alone outranks rate plan alone
	assert.Greater(t, roomTypeOnly.Specificity(), ratePlanOnly.Specificity())
}

func TestEvaluateDeduplicatesViolations(t *testing.T) {
	rules := []Restriction{
		{Date: day("2025-06-10"), MinStay: ptr(5)},
		{Date: day("2025-06-11"), MinStay: ptr(5)},
	}

	res := EvaluateRestrictions(rules, day("2025-06-10"), day("2025-06-12"))
	require.False(t, res.Allowed)
	// one violation per distinct message, not per night
	assert.Len(t, res.Violations, 2)
	assert.NotEqual(t, res.Violations[0], res.Violations[1])
}
