package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

// BookingHandler handles booking lifecycle HTTP requests.
type BookingHandler struct {
	bookings *service.BookingService
	matcher  *service.DispatchMatcher
}

// NewBookingHandler creates a new handler wired to the booking service.
func NewBookingHandler(bookings *service.BookingService, matcher *service.DispatchMatcher) *BookingHandler {
	return &BookingHandler{bookings: bookings, matcher: matcher}
}

// Create handles POST /api/v1/bookings
//
// Request body:
//
//	{
//	  "vehicleType": "mini",
//	  "pickup":  {"lat": 9.000, "lon": 38.700, "address": "Bole"},
//	  "dropoff": {"lat": 9.020, "lon": 38.720}
//	}
//
// Response codes:
//
//	201: booking requested
//	400: invalid vehicle type or coordinates
//	403: caller is not a passenger
//	409: passenger already has a requested booking
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var in service.CreateBookingInput
	if !decode(w, r, &in) {
		return
	}
	v, err := h.bookings.Create(r.Context(), a, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// List handles GET /api/v1/bookings?status=&limit=
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	in := service.ListInput{Status: model.BookingStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_limit", Message: "limit must be a non-negative integer"})
			return
		}
		in.Limit = limit
	}

	list, err := h.bookings.List(r.Context(), a, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/bookings/{id}
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	v, err := h.bookings.Get(r.Context(), a, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Lifecycle handles POST /api/v1/bookings/{id}/lifecycle
//
// Request body:
//
//	{"status": "accepted"}
//	{"status": "accepted", "driverId": "...", "dispatcherId": "..."}   // staff
//
// Response codes:
//
//	200: transition applied
//	400: unknown status, missing driver/dispatcher
//	403: wrong actor for the transition
//	404: booking or driver not found
//	409: guard rejected the transition or another request won
func (h *BookingHandler) Lifecycle(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var in service.LifecycleInput
	if !decode(w, r, &in) {
		return
	}
	v, err := h.bookings.UpdateStatus(r.Context(), a, mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Assign handles POST /api/v1/bookings/{id}/assign
//
// Request body:
//
//	{"driverId": "...", "dispatcherId": "...", "passengerId": "..."}
func (h *BookingHandler) Assign(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var in service.AssignInput
	if !decode(w, r, &in) {
		return
	}
	v, err := h.bookings.Assign(r.Context(), a, mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// RatePassenger handles POST /api/v1/bookings/{id}/rate-passenger
func (h *BookingHandler) RatePassenger(w http.ResponseWriter, r *http.Request) {
	h.rate(w, r, h.bookings.RatePassenger)
}

// RateDriver handles POST /api/v1/bookings/{id}/rate-driver
func (h *BookingHandler) RateDriver(w http.ResponseWriter, r *http.Request) {
	h.rate(w, r, h.bookings.RateDriver)
}

type rateFn func(ctx context.Context, a model.Actor, id string, in service.RatingInput) (*service.BookingView, error)

func (h *BookingHandler) rate(w http.ResponseWriter, r *http.Request, fn rateFn) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var in service.RatingInput
	if !decode(w, r, &in) {
		return
	}
	v, err := fn(r.Context(), a, mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// History handles GET /api/v1/bookings/{id}/history
func (h *BookingHandler) History(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	rows, err := h.bookings.History(r.Context(), a, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Earnings handles GET /api/v1/bookings/{id}/earnings
func (h *BookingHandler) Earnings(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	s, err := h.bookings.Earnings(r.Context(), a, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// NearbyPending handles GET /api/v1/bookings/nearby/pending?radiusKm=
//
// Lists requested bookings near the calling driver's last known location,
// nearest first.
func (h *BookingHandler) NearbyPending(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	radius, _, err := queryFloat(r, "radiusKm")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_radius", Message: "radiusKm must be a number"})
		return
	}
	list, err := h.matcher.NearbyPending(r.Context(), a, radius)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
