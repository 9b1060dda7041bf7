package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

// Cancel handles POST /api/v1/bookings/{id}/cancel
//
// Shorthand for a lifecycle request with status "canceled". Only requested
// and accepted bookings can be cancelled, by their passenger, their driver,
// or staff.
//
// Response codes:
//
//	200: booking cancelled, driver released
//	403: caller may not cancel this booking
//	404: booking not found
//	409: booking already started, completed, or cancelled
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	in := service.LifecycleInput{Status: model.StatusCanceled}
	v, err := h.bookings.UpdateStatus(r.Context(), a, mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Delete handles DELETE /api/v1/bookings/{id}
//
// The owning passenger may withdraw a booking that has not started. The
// trip history is kept.
//
// Response codes:
//
//	204: booking removed
//	403: caller is not the owning passenger
//	404: booking not found
//	409: booking already started or finished
func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if err := h.bookings.Delete(r.Context(), a, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
