package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/ridedispatch/internal/middleware"
	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository"
	"github.com/shiva/ridedispatch/internal/service"
)

var (
	pickup  = map[string]any{"lat": 9.0, "lon": 38.7}
	dropoff = map[string]any{"lat": 9.02, "lon": 38.72}
)

type recordedPositions struct {
	mu  sync.Mutex
	got map[string]model.Location
}

func (p *recordedPositions) UpdatePosition(driverID string, loc model.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got[driverID] = loc
}

type testAPI struct {
	store     *repository.MemoryStore
	positions *recordedPositions
	router    http.Handler
}

func newTestAPI(t *testing.T, checks ...HealthCheck) *testAPI {
	t.Helper()
	store := repository.NewMemoryStore()
	registry := service.NewDriverRegistry(store.Drivers())
	pricing := service.NewPricingService(store.Pricing(), nil)
	ledger := service.NewCommissionLedger(store.Commissions(), service.DefaultCommissionPercent)
	matcher := service.NewDispatchMatcher(store.Drivers(), store.Bookings(), service.Radii{})
	bookings := service.NewBookingService(service.BookingDeps{
		Bookings: store.Bookings(),
		Registry: registry,
		Pricing:  pricing,
		Ledger:   ledger,
		Identity: store.Identity(),
		Tracker:  store.Tracker(),
	})
	positions := &recordedPositions{got: map[string]model.Location{}}

	return &testAPI{
		store:     store,
		positions: positions,
		router: NewRouter(Deps{
			Bookings:  bookings,
			Pricing:   pricing,
			Ledger:    ledger,
			Matcher:   matcher,
			Registry:  registry,
			Positions: positions,
			Health:    checks,
		}),
	}
}

func (api *testAPI) do(t *testing.T, method, path string, as *model.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(middleware.UserIDHeader, as.ID)
		req.Header.Set(middleware.UserRoleHeader, string(as.Role))
	}
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody(t, rec)["error"].(string)
}

func ptr(a model.Actor) *model.Actor { return &a }

func (api *testAPI) createBooking(t *testing.T, passengerID string) string {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/api/v1/bookings", ptr(model.Passenger(passengerID)), map[string]any{
		"vehicleType": "mini", "pickup": pickup, "dropoff": dropoff,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["id"].(string)
}

func (api *testAPI) placeDriver(t *testing.T, driverID string, lat, lon float64) {
	t.Helper()
	rec := api.do(t, http.MethodPut, "/api/v1/drivers/me/location", ptr(model.Driver(driverID)), map[string]any{
		"lat": lat, "lon": lon, "vehicleType": "mini",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (api *testAPI) lifecycle(t *testing.T, as model.Actor, id string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/lifecycle", &as, body)
}

// ─── Health / metrics ───────────────────────────────────────

func TestHealth(t *testing.T) {
	api := newTestAPI(t,
		HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
	)
	rec := api.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["services"].(map[string]any)["postgres"])

	api = newTestAPI(t,
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)
	rec = api.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["services"].(map[string]any)["redis"], "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodGet, "/health", nil, nil)
	rec := api.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ride_dispatch_http_requests_total")
}

func TestAPI_RequiresIdentity(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/v1/bookings", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", errorCode(t, rec))
}

// ─── Bookings ───────────────────────────────────────────────

func TestBookingLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.store.Identity().PutProfile(&model.Profile{ID: "p1", Name: "Abebe"})
	id := api.createBooking(t, "p1")
	api.placeDriver(t, "d1", 9.001, 38.701)

	rec := api.lifecycle(t, model.Driver("d1"), id, map[string]any{"status": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "d1", body["driver_id"])
	assert.Equal(t, "Abebe", body["passenger"].(map[string]any)["name"])

	rec = api.lifecycle(t, model.Driver("d1"), id, map[string]any{"status": "ongoing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/v1/bookings/"+id+"/earnings", ptr(model.Driver("d1")), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "earnings_not_found", errorCode(t, rec))

	rec = api.lifecycle(t, model.Driver("d1"), id, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.lifecycle(t, model.Driver("d1"), id, map[string]any{"status": "canceled"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "booking_completed", errorCode(t, rec))

	rec = api.do(t, http.MethodGet, "/api/v1/bookings/"+id+"/earnings", ptr(model.Driver("d1")), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	driver := decodeBody(t, rec)["driver"].(map[string]any)
	assert.InDelta(t, 5.1257, driver["gross_fare"], 0.0001)
	assert.InDelta(t, 0.77, driver["commission_amount"], 1e-9)
	assert.InDelta(t, 4.3557, driver["net_earnings"], 0.0001)

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/rate-driver", ptr(model.Passenger("p1")), map[string]any{"rating": 5, "comment": "smooth"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 5, decodeBody(t, rec)["driver_rating"])

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/rate-passenger", ptr(model.Driver("d1")), map[string]any{"rating": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/v1/bookings/"+id+"/history", ptr(model.Passenger("p1")), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []model.TripHistory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 4)
	assert.Equal(t, model.StatusCompleted, history[3].Status)

	d, err := api.store.Drivers().Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.True(t, d.Available)
}

func TestCreateBooking_Errors(t *testing.T) {
	api := newTestAPI(t)
	api.createBooking(t, "p1")

	rec := api.do(t, http.MethodPost, "/api/v1/bookings", ptr(model.Passenger("p1")), map[string]any{
		"vehicleType": "mini", "pickup": pickup, "dropoff": dropoff,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "passenger_has_request", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/api/v1/bookings", ptr(model.Passenger("p2")), map[string]any{
		"vehicleType": "bike", "pickup": pickup, "dropoff": dropoff,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_vehicle_type", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/api/v1/bookings", ptr(model.Passenger("p2")), map[string]any{
		"pickup": pickup, "dropoff": dropoff,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", errorCode(t, rec))

	for name, body := range map[string]map[string]any{
		"no pickup":     {"vehicleType": "mini", "dropoff": dropoff},
		"no dropoff":    {"vehicleType": "mini", "pickup": pickup},
		"no points":     {"vehicleType": "mini"},
		"pickup no lat": {"vehicleType": "mini", "pickup": map[string]any{"lon": 38.7}, "dropoff": dropoff},
	} {
		rec = api.do(t, http.MethodPost, "/api/v1/bookings", ptr(model.Passenger("p2")), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, "invalid_location", errorCode(t, rec), name)
	}
	rec = api.do(t, http.MethodGet, "/api/v1/bookings", ptr(model.Passenger("p2")), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/v1/bookings", ptr(model.Driver("d1")), map[string]any{
		"vehicleType": "mini", "pickup": pickup, "dropoff": dropoff,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewBufferString("{oops"))
	req.Header.Set(middleware.UserIDHeader, "p3")
	req.Header.Set(middleware.UserRoleHeader, "passenger")
	raw := httptest.NewRecorder()
	api.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
	assert.Equal(t, "invalid_body", errorCode(t, raw))
}

func TestGetAndList(t *testing.T) {
	api := newTestAPI(t)
	id := api.createBooking(t, "p1")
	api.createBooking(t, "p2")

	rec := api.do(t, http.MethodGet, "/api/v1/bookings/"+id, ptr(model.Passenger("p2")), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/bookings/missing", ptr(model.Passenger("p1")), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "booking_not_found", errorCode(t, rec))

	rec = api.do(t, http.MethodGet, "/api/v1/bookings?status=requested", ptr(model.Passenger("p1")), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, id, mine[0]["id"])

	rec = api.do(t, http.MethodGet, "/api/v1/bookings", ptr(model.Admin("a1")), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = api.do(t, http.MethodGet, "/api/v1/bookings?limit=-1", ptr(model.Admin("a1")), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_limit", errorCode(t, rec))
}

func TestAssign(t *testing.T) {
	api := newTestAPI(t)
	id := api.createBooking(t, "p1")
	api.placeDriver(t, "d1", 9.001, 38.701)

	body := map[string]any{"driverId": "d1", "dispatcherId": "disp1", "passengerId": "p1"}
	rec := api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/assign", ptr(model.Passenger("p1")), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/assign", ptr(model.Dispatcher("disp1")), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "accepted", decodeBody(t, rec)["status"])
	require.Len(t, api.store.Bookings().Assignments(id), 1)

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/assign", ptr(model.Dispatcher("disp1")), body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelAndDelete(t *testing.T) {
	api := newTestAPI(t)
	id := api.createBooking(t, "p1")

	rec := api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", ptr(model.Passenger("p2")), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", ptr(model.Passenger("p1")), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "canceled", decodeBody(t, rec)["status"])

	rec = api.do(t, http.MethodDelete, "/api/v1/bookings/"+id, ptr(model.Passenger("p1")), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cannot_delete", errorCode(t, rec))

	other := api.createBooking(t, "p1")
	rec = api.do(t, http.MethodDelete, "/api/v1/bookings/"+other, ptr(model.Passenger("p1")), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	rec = api.do(t, http.MethodGet, "/api/v1/bookings/"+other, ptr(model.Passenger("p1")), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRating_Validation(t *testing.T) {
	api := newTestAPI(t)
	id := api.createBooking(t, "p1")

	rec := api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/rate-driver", ptr(model.Passenger("p1")), map[string]any{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/rate-passenger", ptr(model.Passenger("p1")), map[string]any{"rating": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_counterparty", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/rate-driver", ptr(model.Passenger("p1")), map[string]any{"rating": 5})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_rateable", errorCode(t, rec))
}

func TestNearbyPending(t *testing.T) {
	api := newTestAPI(t)
	id := api.createBooking(t, "p1")
	api.placeDriver(t, "d1", 9.001, 38.701)

	rec := api.do(t, http.MethodGet, "/api/v1/bookings/nearby/pending", ptr(model.Driver("d1")), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["booking"].(map[string]any)["id"])

	rec = api.do(t, http.MethodGet, "/api/v1/bookings/nearby/pending", ptr(model.Passenger("p1")), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/bookings/nearby/pending?radiusKm=far", ptr(model.Driver("d1")), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ─── Drivers ────────────────────────────────────────────────

func TestDriverLocationAndAvailability(t *testing.T) {
	api := newTestAPI(t)
	api.placeDriver(t, "d1", 9.001, 38.701)
	api.placeDriver(t, "d2", 9.2, 38.9)

	assert.Equal(t, model.Location{Lat: 9.001, Lon: 38.701}, api.positions.got["d1"])

	rec := api.do(t, http.MethodGet, "/api/v1/drivers/available?lat=9&lon=38.7&vehicleType=mini", ptr(model.Passenger("p1")), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var drivers []model.NearbyDriver
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &drivers))
	require.Len(t, drivers, 1)
	assert.Equal(t, "d1", drivers[0].DriverID)

	rec = api.do(t, http.MethodGet, "/api/v1/drivers/available?lat=9&lon=38.7&radiusKm=100", ptr(model.Passenger("p1")), nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &drivers))
	assert.Len(t, drivers, 2)

	rec = api.do(t, http.MethodGet, "/api/v1/drivers/available?lat=9", ptr(model.Passenger("p1")), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/drivers/me/location", ptr(model.Passenger("p1")), map[string]any{"lat": 9, "lon": 38.7})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/drivers/me/location", ptr(model.Driver("d3")), map[string]any{"lat": 120, "lon": 38.7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/drivers/me/location", ptr(model.Driver("d1")), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_location", errorCode(t, rec))
	rec = api.do(t, http.MethodPut, "/api/v1/drivers/me/location", ptr(model.Driver("d1")), map[string]any{"lat": 9.5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	d, err := api.store.Drivers().Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 9.001, d.Location.Lat, "a rejected report keeps the last position")
	assert.Equal(t, model.Location{Lat: 9.001, Lon: 38.701}, api.positions.got["d1"])
}

// ─── Pricing / commission ───────────────────────────────────

func TestEstimate(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/bookings/estimate", ptr(model.Passenger("p1")), map[string]any{
		"vehicleType": "mini", "pickup": pickup, "dropoff": dropoff,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	distance := body["distance_km"].(float64)
	assert.InDelta(t, 3.1257, distance, 0.001)
	assert.InDelta(t, 2+distance, body["fare_estimated"], 1e-9)

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/estimate", ptr(model.Passenger("p1")), map[string]any{
		"vehicleType": "mini",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_location", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/estimate", ptr(model.Passenger("p1")), map[string]any{
		"vehicleType": "mini", "pickup": pickup,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_location", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/estimate", ptr(model.Passenger("p1")), map[string]any{
		"vehicleType": "mini", "pickup": map[string]any{"lat": 95, "lon": 0}, "dropoff": dropoff,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_location", errorCode(t, rec))
}

func TestPricingTiers(t *testing.T) {
	api := newTestAPI(t)
	tier := map[string]any{"baseFare": 3, "perKm": 2, "perMinute": 0.2, "waitingPerMinute": 0.1, "surgeMultiplier": 1.5}

	rec := api.do(t, http.MethodPut, "/api/v1/pricing/sedan", ptr(model.Dispatcher("disp1")), tier)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/pricing/sedan", ptr(model.Admin("a1")), tier)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 1.5, decodeBody(t, rec)["surge_multiplier"], 1e-9)

	rec = api.do(t, http.MethodGet, "/api/v1/pricing", ptr(model.Passenger("p1")), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tiers []model.PricingTier
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tiers))
	require.Len(t, tiers, 3)
	assert.Equal(t, 2.0, tiers[1].PerKm)

	tier["surgeMultiplier"] = 0
	rec = api.do(t, http.MethodPut, "/api/v1/pricing/sedan", ptr(model.Admin("a1")), tier)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommission(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/commissions/active", ptr(model.Admin("a1")), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 15.0, decodeBody(t, rec)["percentage"], 1e-9)

	rec = api.do(t, http.MethodPost, "/api/v1/commissions", ptr(model.Admin("a1")), map[string]any{"percentage": 20})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/v1/commissions/active", ptr(model.Admin("a1")), nil)
	assert.InDelta(t, 20.0, decodeBody(t, rec)["percentage"], 1e-9)

	rec = api.do(t, http.MethodPost, "/api/v1/commissions", ptr(model.Admin("a1")), map[string]any{"percentage": 120})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/commissions", ptr(model.Passenger("p1")), map[string]any{"percentage": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// ─── Error mapping ──────────────────────────────────────────

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrInvalidRating, http.StatusBadRequest, "invalid_rating"},
		{service.ErrDriverBusy, http.StatusConflict, "driver_busy"},
		{service.ErrNotAssignedDriver, http.StatusForbidden, "not_assigned_driver"},
		{service.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},
		{service.ErrIdentityLookup, http.StatusBadGateway, "identity_unavailable"},
		{errors.New("pool exhausted"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}
