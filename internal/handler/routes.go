package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shiva/ridedispatch/internal/middleware"
	"github.com/shiva/ridedispatch/internal/service"
)

// Deps are the services exposed over HTTP.
type Deps struct {
	Bookings *service.BookingService
	Pricing  *service.PricingService
	Ledger   *service.CommissionLedger
	Matcher  *service.DispatchMatcher
	Registry *service.DriverRegistry

	// Socket serves /ws. It runs behind Identity. Nil disables the route.
	Socket http.Handler
	// Positions is told about driver location reports made over HTTP.
	Positions PositionSink

	Health []HealthCheck
}

// NewRouter builds the full HTTP surface of the engine.
func NewRouter(d Deps) http.Handler {
	bookings := NewBookingHandler(d.Bookings, d.Matcher)
	pricing := NewPricingHandler(d.Pricing, d.Ledger)
	drivers := NewDriverHandler(d.Registry, d.Matcher, d.Positions)

	router := mux.NewRouter()
	router.Use(middleware.Recoverer, middleware.RequestID, middleware.RequestLogger, middleware.Metrics)

	router.HandleFunc("/health", Health(d.Health...)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if d.Socket != nil {
		router.Handle("/ws", middleware.Identity(d.Socket)).Methods(http.MethodGet)
	}

	// API v1 routes. Fixed paths are registered before {id} so they win.
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Identity)

	// Bookings
	api.HandleFunc("/bookings/estimate", pricing.Estimate).Methods(http.MethodPost)
	api.HandleFunc("/bookings/nearby/pending", bookings.NearbyPending).Methods(http.MethodGet)
	api.HandleFunc("/bookings", bookings.Create).Methods(http.MethodPost)
	api.HandleFunc("/bookings", bookings.List).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", bookings.Get).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", bookings.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/bookings/{id}/lifecycle", bookings.Lifecycle).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/assign", bookings.Assign).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/cancel", bookings.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/rate-passenger", bookings.RatePassenger).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/rate-driver", bookings.RateDriver).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/history", bookings.History).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/earnings", bookings.Earnings).Methods(http.MethodGet)

	// Drivers
	api.HandleFunc("/drivers/available", drivers.Available).Methods(http.MethodGet)
	api.HandleFunc("/drivers/me/location", drivers.UpdateLocation).Methods(http.MethodPut)

	// Pricing and commission
	api.HandleFunc("/pricing", pricing.ListTiers).Methods(http.MethodGet)
	api.HandleFunc("/pricing/{vehicleType}", pricing.SetTier).Methods(http.MethodPut)
	api.HandleFunc("/commissions", pricing.SetCommission).Methods(http.MethodPost)
	api.HandleFunc("/commissions/active", pricing.ActiveCommission).Methods(http.MethodGet)

	// Wrap with CORS so browser clients can call the API.
	return middleware.CORS(router)
}
