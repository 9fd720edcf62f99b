package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/hostwell/pms-reservations/internal/redisx"
	"github.com/hostwell/pms-reservations/internal/reservations"
)

// ReservationsHandler exposes the booking commands and the calendar /
// occupancy queries. Tenant comes from X-Tenant-ID, the acting user from
// X-Actor; mutating requests carry the version the caller last observed.
type ReservationsHandler struct {
	Commands *reservations.Commands
	Repo     *reservations.Repo
	Redis    *redis.Client
}

func (h *ReservationsHandler) Register(r *chi.Mux) {
	r.Post("/reservations", h.create)
	r.Get("/reservations/{id}", h.get)
	r.Post("/reservations/{id}/cancel", h.cancel)
	r.Post("/reservations/{id}/check-in", h.checkIn)
	r.Post("/reservations/{id}/check-out", h.checkOut)
	r.Post("/reservations/{id}/move", h.moveRoom)
	r.Post("/reservations/{id}/resize", h.resize)
	r.Get("/calendar", h.calendar)
	r.Get("/occupancy", h.occupancy)
	r.Get("/rooms/suggest", h.suggestRooms)
	r.Post("/rooms/{id}/out-of-order", h.outOfOrder)
	r.Post("/rooms/{id}/restore", h.restore)
}

// ---- request/response types ----

type guestReq struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type createReservationReq struct {
	PropertyID string   `json:"property_id"`
	GuestID    *string  `json:"guest_id"`
	Guest      guestReq `json:"guest"`
	RoomTypeID string   `json:"room_type_id"`
	RoomID     *string  `json:"room_id"`
	RatePlanID string   `json:"rate_plan_id"`
	CheckIn    string   `json:"check_in"`
	CheckOut   string   `json:"check_out"`
	Source     string   `json:"source"`
	RateCents  int      `json:"rate_cents"`
	TaxCents   int      `json:"tax_cents"`
	FeeCents   int      `json:"fee_cents"`
}

type cancelReq struct {
	Version int    `json:"version"`
	Reason  string `json:"reason"`
}

type versionReq struct {
	Version int `json:"version"`
}

type moveReq struct {
	Version   int    `json:"version"`
	NewRoomID string `json:"new_room_id"`
}

type resizeReq struct {
	Version  int    `json:"version"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type blockReq struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type reservationResp struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	RoomID     *string `json:"room_id"`
	CheckIn    string  `json:"check_in"`
	CheckOut   string  `json:"check_out"`
	GuestName  string  `json:"guest_name"`
	TotalCents int     `json:"total_cents"`
	Version    int     `json:"version"`
}

func toResp(r *reservations.Reservation) reservationResp {
	return reservationResp{
		ID:         r.ID,
		Status:     string(r.Status),
		RoomID:     r.RoomID,
		CheckIn:    r.CheckIn.Format(reservations.DateFormat),
		CheckOut:   r.CheckOut.Format(reservations.DateFormat),
		GuestName:  r.Guest.DisplayName(),
		TotalCents: r.TotalCents,
		Version:    r.Version,
	}
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the domain error taxonomy onto HTTP so clients can tell
// retry (409 conflict) from change-your-input (422) from terminal (404).
func writeErr(w http.ResponseWriter, err error) {
	var inv *reservations.InvalidTransitionError
	var rv *reservations.RestrictionViolationError
	switch {
	case errors.Is(err, reservations.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, reservations.ErrInvalidStay):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, reservations.ErrRoomAlreadyBooked),
		errors.Is(err, reservations.ErrRoomOutOfOrder),
		errors.Is(err, reservations.ErrConcurrencyConflict),
		errors.Is(err, reservations.ErrNotMovable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &inv):
		writeJSON(w, http.StatusConflict, map[string]string{"error": inv.Error()})
	case errors.As(err, &rv):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": "restriction violation", "violations": rv.Violations,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func tenantActor(r *http.Request) (string, string, bool) {
	tenant := r.Header.Get("X-Tenant-ID")
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = "unknown"
	}
	return tenant, actor, tenant != ""
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(reservations.DateFormat, s)
}

func cmdCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

// ---- command endpoints ----

func (h *ReservationsHandler) create(w http.ResponseWriter, r *http.Request) {
	tenant, actor, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	var req createReservationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.PropertyID == "" || req.RoomTypeID == "" || req.RatePlanID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	checkIn, err := parseDate(req.CheckIn)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid check_in"})
		return
	}
	checkOut, err := parseDate(req.CheckOut)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid check_out"})
		return
	}

	ctx, cancel := cmdCtx(r)
	defer cancel()

	res, err := h.Commands.Create(ctx, reservations.CreateInput{
		TenantID:   tenant,
		PropertyID: req.PropertyID,
		Actor:      actor,
		GuestID:    req.GuestID,
		Guest: reservations.GuestSnapshot{
			FirstName: req.Guest.FirstName, LastName: req.Guest.LastName,
			Email: req.Guest.Email, Phone: req.Guest.Phone,
		},
		RoomTypeID: req.RoomTypeID,
		RoomID:     req.RoomID,
		RatePlanID: req.RatePlanID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Source:     req.Source,
		RateCents:  req.RateCents,
		TaxCents:   req.TaxCents,
		FeeCents:   req.FeeCents,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResp(res))
}

func (h *ReservationsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	tenant, actor, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancelCtx := cmdCtx(r)
	defer cancelCtx()

	res, err := h.Commands.Cancel(ctx, reservations.CancelInput{
		TenantID:      tenant,
		ReservationID: chi.URLParam(r, "id"),
		Actor:         actor,
		Version:       req.Version,
		Reason:        req.Reason,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(res))
}

func (h *ReservationsHandler) checkIn(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.Commands.CheckIn)
}

func (h *ReservationsHandler) checkOut(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.Commands.CheckOut)
}

func (h *ReservationsHandler) statusChange(w http.ResponseWriter, r *http.Request,
	cmd func(context.Context, reservations.StatusInput) (*reservations.Reservation, error)) {
	tenant, actor, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	var req versionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := cmdCtx(r)
	defer cancel()

	res, err := cmd(ctx, reservations.StatusInput{
		TenantID:      tenant,
		ReservationID: chi.URLParam(r, "id"),
		Actor:         actor,
		Version:       req.Version,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(res))
}

func (h *ReservationsHandler) moveRoom(w http.ResponseWriter, r *http.Request) {
	tenant, actor, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	var req moveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewRoomID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	ctx, cancel := cmdCtx(r)
	defer cancel()

	res, err := h.Commands.MoveRoom(ctx, reservations.MoveInput{
		TenantID:      tenant,
		ReservationID: chi.URLParam(r, "id"),
		Actor:         actor,
		Version:       req.Version,
		NewRoomID:     req.NewRoomID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(res))
}

func (h *ReservationsHandler) resize(w http.ResponseWriter, r *http.Request) {
	tenant, actor, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	var req resizeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	checkIn, err := parseDate(req.CheckIn)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid check_in"})
		return
	}
	checkOut, err := parseDate(req.CheckOut)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid check_out"})
		return
	}

	ctx, cancel := cmdCtx(r)
	defer cancel()

	res, err := h.Commands.Resize(ctx, reservations.ResizeInput{
		TenantID:      tenant,
		ReservationID: chi.URLParam(r, "id"),
		Actor:         actor,
		Version:       req.Version,
		NewCheckIn:    checkIn,
		NewCheckOut:   checkOut,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(res))
}

func (h *ReservationsHandler) outOfOrder(w http.ResponseWriter, r *http.Request) {
	tenant, actor, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	var req blockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	from, err := parseDate(req.From)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from"})
		return
	}
	to, err := parseDate(req.To)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to"})
		return
	}

	ctx, cancel := cmdCtx(r)
	defer cancel()

	block, err := h.Commands.PlaceOutOfOrder(ctx, tenant, chi.URLParam(r, "id"), actor, req.Reason, from, to)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"block_id": block.ID,
		"from":     block.CheckIn.Format(reservations.DateFormat),
		"to":       block.CheckOut.Format(reservations.DateFormat),
	})
}

func (h *ReservationsHandler) restore(w http.ResponseWriter, r *http.Request) {
	tenant, actor, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	var req blockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	from, err := parseDate(req.From)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from"})
		return
	}
	to, err := parseDate(req.To)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to"})
		return
	}

	ctx, cancel := cmdCtx(r)
	defer cancel()

	n, err := h.Commands.RestoreRoom(ctx, tenant, chi.URLParam(r, "id"), actor, from, to)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"restored_blocks": n})
}

// ---- query endpoints ----

func (h *ReservationsHandler) get(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := h.Repo.GetReservation(ctx, tenant, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(res))
}

func (h *ReservationsHandler) calendar(w http.ResponseWriter, r *http.Request) {
	h.rangeQuery(w, r, redisx.KeyCalendar, func(ctx context.Context, tenant, property string, from, to time.Time) (any, error) {
		return h.Repo.CalendarRange(ctx, tenant, property, from, to)
	})
}

func (h *ReservationsHandler) occupancy(w http.ResponseWriter, r *http.Request) {
	h.rangeQuery(w, r, redisx.KeyOccupancy, func(ctx context.Context, tenant, property string, from, to time.Time) (any, error) {
		return h.Repo.OccupancyRange(ctx, tenant, property, from, to)
	})
}

// rangeQuery serves a cached property/date-range view. Cache is TTL-only:
// projection lag already makes these views eventually consistent, a short
// cache does not change the contract.
func (h *ReservationsHandler) rangeQuery(w http.ResponseWriter, r *http.Request, keyFmt string,
	fetch func(ctx context.Context, tenant, property string, from, to time.Time) (any, error)) {
	tenant, _, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	property := r.URL.Query().Get("property_id")
	from, err1 := parseDate(r.URL.Query().Get("from"))
	to, err2 := parseDate(r.URL.Query().Get("to"))
	if property == "" || err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "property_id, from and to are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(keyFmt, tenant, property,
		from.Format(reservations.DateFormat), to.Format(reservations.DateFormat))
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	out, err := fetch(ctx, tenant, property, from, to)
	if err != nil {
		writeErr(w, err)
		return
	}
	body, _ := json.Marshal(out)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, body, redisx.TTLViewCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *ReservationsHandler) suggestRooms(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantActor(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Tenant-ID"})
		return
	}
	q := r.URL.Query()
	property := q.Get("property_id")
	roomType := q.Get("room_type_id")
	from, err1 := parseDate(q.Get("check_in"))
	to, err2 := parseDate(q.Get("check_out"))
	if property == "" || roomType == "" || err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "property_id, room_type_id, check_in and check_out are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rooms, err := h.Repo.SuggestRooms(ctx, tenant, property, roomType, from, to)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}
