package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

// EstimateRequest is the JSON body for POST /api/v1/bookings/estimate.
type EstimateRequest struct {
	VehicleType model.VehicleType   `json:"vehicleType" validate:"required"`
	Pickup      *service.PointInput `json:"pickup"`
	Dropoff     *service.PointInput `json:"dropoff"`
}

// CommissionRequest is the JSON body for POST /api/v1/commissions.
type CommissionRequest struct {
	Percentage float64 `json:"percentage" validate:"gte=0,lte=100"`
}

// PricingHandler handles fare estimation, pricing tiers and commission.
type PricingHandler struct {
	pricing *service.PricingService
	ledger  *service.CommissionLedger
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(pricing *service.PricingService, ledger *service.CommissionLedger) *PricingHandler {
	return &PricingHandler{pricing: pricing, ledger: ledger}
}

// Estimate handles POST /api/v1/bookings/estimate
//
// Request body:
//
//	{
//	  "vehicleType": "sedan",
//	  "pickup":  {"lat": 9.000, "lon": 38.700},
//	  "dropoff": {"lat": 9.020, "lon": 38.720}
//	}
//
// Response: FareEstimate with distance, duration and breakdown. Nothing is
// persisted.
func (h *PricingHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	var req EstimateRequest
	if !decode(w, r, &req) {
		return
	}
	pickup, dropoff, err := service.ResolveTrip(req.Pickup, req.Dropoff)
	if err != nil {
		writeError(w, r, err)
		return
	}
	est, err := h.pricing.Estimate(r.Context(), req.VehicleType, pickup, dropoff)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// ListTiers handles GET /api/v1/pricing
func (h *PricingHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.pricing.ListTiers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

// SetTier handles PUT /api/v1/pricing/{vehicleType}
//
// Request body:
//
//	{"baseFare": 3, "perKm": 1.2, "perMinute": 0.2, "waitingPerMinute": 0.1, "surgeMultiplier": 1.5}
//
// Admin only. Connected clients receive pricing:update.
func (h *PricingHandler) SetTier(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var in service.TierInput
	if !decode(w, r, &in) {
		return
	}
	vt := model.VehicleType(mux.Vars(r)["vehicleType"])
	tier, err := h.pricing.SetTier(r.Context(), a, vt, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tier)
}

// SetCommission handles POST /api/v1/commissions
func (h *PricingHandler) SetCommission(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req CommissionRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.ledger.SetPercentage(r.Context(), a, req.Percentage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ActiveCommission handles GET /api/v1/commissions/active
func (h *PricingHandler) ActiveCommission(w http.ResponseWriter, r *http.Request) {
	c, err := h.ledger.Active(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
