package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwell/pms-reservations/internal/reservations"
)

func TestWriteErrMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", reservations.ErrNotFound, http.StatusNotFound},
		{"invalid stay", reservations.ErrInvalidStay, http.StatusBadRequest},
		{"room booked", reservations.ErrRoomAlreadyBooked, http.StatusConflict},
		{"out of order", reservations.ErrRoomOutOfOrder, http.StatusConflict},
		{"version conflict", reservations.ErrConcurrencyConflict, http.StatusConflict},
		{"not movable", reservations.ErrNotMovable, http.StatusConflict},
		{"bad transition", &reservations.InvalidTransitionError{
			From: reservations.StatusCancelled, To: reservations.StatusCheckedIn,
		}, http.StatusConflict},
		{"restriction", &reservations.RestrictionViolationError{
			Violations: []string{"stop-sell in effect on 2025-06-10"},
		}, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeErr(rec, tc.err)
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWriteErrRestrictionBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, &reservations.RestrictionViolationError{Violations: []string{"closed to arrival on 2025-06-10"}})

	var body struct {
		Error      string   `json:"error"`
		Violations []string `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"closed to arrival on 2025-06-10"}, body.Violations)
}

func TestCreateRejectsMissingTenant(t *testing.T) {
	h := &ReservationsHandler{}
	req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-Tenant-ID")
}

func TestCreateRejectsBadDates(t *testing.T) {
	h := &ReservationsHandler{}
	body := `{"property_id":"p1","room_type_id":"rt1","rate_plan_id":"rp1","check_in":"June 10","check_out":"2025-06-12"}`
	req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "t1")
	rec := httptest.NewRecorder()

	h.create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "check_in")
}

func TestCreateRejectsMissingFields(t *testing.T) {
	h := &ReservationsHandler{}
	req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(`{"property_id":"p1"}`))
	req.Header.Set("X-Tenant-ID", "t1")
	rec := httptest.NewRecorder()

	h.create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRangeQueryRejectsMissingParams(t *testing.T) {
	h := &ReservationsHandler{}
	req := httptest.NewRequest(http.MethodGet, "/calendar?property_id=p1&from=2025-06-10", nil)
	req.Header.Set("X-Tenant-ID", "t1")
	rec := httptest.NewRecorder()

	h.calendar(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	router := NewRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
