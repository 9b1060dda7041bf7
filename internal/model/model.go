// Package model contains domain models for the ride dispatch engine.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

type VehicleType string

const (
	VehicleMini  VehicleType = "mini"
	VehicleSedan VehicleType = "sedan"
	VehicleVan   VehicleType = "van"
)

// Valid reports whether v is one of the supported vehicle types.
func (v VehicleType) Valid() bool {
	switch v {
	case VehicleMini, VehicleSedan, VehicleVan:
		return true
	}
	return false
}

type BookingStatus string

const (
	StatusRequested BookingStatus = "requested"
	StatusAccepted  BookingStatus = "accepted"
	StatusOngoing   BookingStatus = "ongoing"
	StatusCompleted BookingStatus = "completed"
	StatusCanceled  BookingStatus = "canceled"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusOngoing, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Active reports whether s binds the assigned driver.
func (s BookingStatus) Active() bool {
	return s == StatusAccepted || s == StatusOngoing
}

type EarningsParty string

const (
	PartyDriver   EarningsParty = "driver"
	PartyPlatform EarningsParty = "platform"
)

// ─── Event names ────────────────────────────────────────────

const (
	EventBookingUpdate   = "booking:update"
	EventBookingAssigned = "booking:assigned"
	EventBookingNew      = "booking:new"
	EventPricingUpdate   = "pricing:update"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address,omitempty"`
}

// Valid reports whether the coordinates are inside the WGS-84 range.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// ─── Domain Models ──────────────────────────────────────────

// FareBreakdown itemises an estimated fare. TimeCost and WaitingCost are
// reserved and currently always zero.
type FareBreakdown struct {
	Base            float64 `json:"base"`
	DistanceCost    float64 `json:"distance_cost"`
	TimeCost        float64 `json:"time_cost"`
	WaitingCost     float64 `json:"waiting_cost"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
}

// FareEstimate is the output of the fare estimator.
type FareEstimate struct {
	VehicleType      VehicleType   `json:"vehicle_type"`
	DistanceKm       float64       `json:"distance_km"`
	EstimatedMinutes float64       `json:"estimated_minutes"`
	FareEstimated    float64       `json:"fare_estimated"`
	Breakdown        FareBreakdown `json:"fare_breakdown"`
}

// Booking maps to the "bookings" table.
type Booking struct {
	ID               string        `json:"id"`
	PassengerID      string        `json:"passenger_id"`
	DriverID         string        `json:"driver_id,omitempty"`
	Pickup           Location      `json:"pickup"`
	Dropoff          Location      `json:"dropoff"`
	VehicleType      VehicleType   `json:"vehicle_type"`
	Status           BookingStatus `json:"status"`
	DistanceKm       float64       `json:"distance_km"`
	FareEstimated    float64       `json:"fare_estimated"`
	FareFinal        *float64      `json:"fare_final,omitempty"`
	FareBreakdown    FareBreakdown `json:"fare_breakdown"`
	AcceptedAt       *time.Time    `json:"accepted_at,omitempty"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	PassengerRating  *int          `json:"passenger_rating,omitempty"`
	PassengerComment string        `json:"passenger_comment,omitempty"`
	DriverRating     *int          `json:"driver_rating,omitempty"`
	DriverComment    string        `json:"driver_comment,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// HasDriver reports whether a driver is bound to the booking.
func (b *Booking) HasDriver() bool { return b.DriverID != "" }

// BookingAssignment maps to the "booking_assignments" table.
type BookingAssignment struct {
	ID           string    `json:"id"`
	BookingID    string    `json:"booking_id"`
	DriverID     string    `json:"driver_id"`
	DispatcherID string    `json:"dispatcher_id"`
	PassengerID  string    `json:"passenger_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// TripHistory maps to the append-only "trip_history" table.
type TripHistory struct {
	ID          string        `json:"id"`
	BookingID   string        `json:"booking_id"`
	DriverID    string        `json:"driver_id,omitempty"`
	PassengerID string        `json:"passenger_id"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// DriverLocation is a driver's last reported position.
type DriverLocation struct {
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	Bearing *float64 `json:"bearing,omitempty"`
}

// Point converts the position to a Location.
func (d DriverLocation) Point() Location { return Location{Lat: d.Lat, Lon: d.Lon} }

// DriverState maps to the "driver_states" table: the part of the driver
// record owned by the dispatch engine.
type DriverState struct {
	DriverID    string          `json:"driver_id"`
	VehicleType VehicleType     `json:"vehicle_type,omitempty"`
	Available   bool            `json:"available"`
	Location    *DriverLocation `json:"location,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PricingTier maps to the "pricing_tiers" table.
type PricingTier struct {
	ID               string      `json:"id"`
	VehicleType      VehicleType `json:"vehicle_type"`
	BaseFare         float64     `json:"base_fare"`
	PerKm            float64     `json:"per_km"`
	PerMinute        float64     `json:"per_minute"`
	WaitingPerMinute float64     `json:"waiting_per_minute"`
	SurgeMultiplier  float64     `json:"surge_multiplier"`
	IsActive         bool        `json:"is_active"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Commission maps to the "commissions" table.
type Commission struct {
	ID         string    `json:"id"`
	Percentage float64   `json:"percentage"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Earnings maps to the "driver_earnings" and "admin_earnings" tables.
// Percentage is the commission rate applied at settlement time.
type Earnings struct {
	ID               string        `json:"id"`
	BookingID        string        `json:"booking_id"`
	DriverID         string        `json:"driver_id"`
	Party            EarningsParty `json:"party"`
	GrossFare        float64       `json:"gross_fare"`
	CommissionAmount float64       `json:"commission_amount"`
	NetEarnings      float64       `json:"net_earnings"`
	Percentage       float64       `json:"percentage"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Settlement pairs the two records written when a trip completes.
type Settlement struct {
	Driver   Earnings `json:"driver"`
	Platform Earnings `json:"platform"`
}

// Profile is the display data returned by the identity store.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// NearbyDriver is a matcher result.
type NearbyDriver struct {
	DriverID    string         `json:"driver_id"`
	VehicleType VehicleType    `json:"vehicle_type,omitempty"`
	Location    DriverLocation `json:"location"`
	DistanceKm  float64        `json:"distance_km"`
}

// NearbyBooking is a pending booking near a driver.
type NearbyBooking struct {
	Booking    *Booking `json:"booking"`
	DistanceKm float64  `json:"distance_km"`
}

// Event is a named notification emitted after a committed change. The
// routing fields let transports address the parties of a booking without
// decoding Payload.
type Event struct {
	Name        string    `json:"event"`
	BookingID   string    `json:"booking_id,omitempty"`
	PassengerID string    `json:"-"`
	DriverID    string    `json:"-"`
	Pickup      *Location `json:"-"`
	Payload     any       `json:"payload"`
	At          time.Time `json:"at"`
}
