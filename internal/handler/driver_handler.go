package handler

import (
	"net/http"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

// PositionSink receives driver positions for realtime notification routing.
type PositionSink interface {
	UpdatePosition(driverID string, loc model.Location)
}

// DriverHandler handles driver location reports and nearby-driver search.
type DriverHandler struct {
	registry  *service.DriverRegistry
	matcher   *service.DispatchMatcher
	positions PositionSink
}

// NewDriverHandler creates a new driver handler. positions may be nil.
func NewDriverHandler(registry *service.DriverRegistry, matcher *service.DispatchMatcher, positions PositionSink) *DriverHandler {
	return &DriverHandler{registry: registry, matcher: matcher, positions: positions}
}

// Available handles GET /api/v1/drivers/available?lat=&lon=&radiusKm=&vehicleType=
//
// Lists available drivers around a point, nearest first. radiusKm defaults
// to 5 km.
func (h *DriverHandler) Available(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	lat, hasLat, errLat := queryFloat(r, "lat")
	lon, hasLon, errLon := queryFloat(r, "lon")
	if errLat != nil || errLon != nil || !hasLat || !hasLon {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_location", Message: "lat and lon query parameters are required numbers"})
		return
	}
	radius, _, err := queryFloat(r, "radiusKm")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_radius", Message: "radiusKm must be a number"})
		return
	}

	vt := model.VehicleType(r.URL.Query().Get("vehicleType"))
	drivers, err := h.matcher.AvailableNearby(r.Context(), model.Location{Lat: lat, Lon: lon}, radius, vt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

// UpdateLocation handles PUT /api/v1/drivers/me/location
//
// Request body:
//
//	{"lat": 9.001, "lon": 38.701, "bearing": 90, "vehicleType": "mini"}
func (h *DriverHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var in service.LocationInput
	if !decode(w, r, &in) {
		return
	}
	d, err := h.registry.UpdateLocation(r.Context(), a, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.positions != nil && d.Location != nil {
		h.positions.UpdatePosition(d.DriverID, d.Location.Point())
	}
	writeJSON(w, http.StatusOK, d)
}
