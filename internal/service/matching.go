// Package service contains the booking lifecycle and dispatch logic.
package service

import (
	"context"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/pkg/geo"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// DefaultAcceptRadiusKm is the furthest a driver may be from pickup when
	// binding to a booking.
	DefaultAcceptRadiusKm = 3.0

	// DefaultDriverSearchRadiusKm bounds the passenger-side nearest search.
	DefaultDriverSearchRadiusKm = 5.0

	// DefaultPendingRadiusKm bounds the driver-side pending search.
	DefaultPendingRadiusKm = 3.0

	// DefaultNotifyRadiusKm is the exclusive-notification threshold.
	DefaultNotifyRadiusKm = 3.0
)

// Radii configures the matcher. Zero fields take the defaults above.
type Radii struct {
	AcceptKm       float64
	DriverSearchKm float64
	PendingKm      float64
	NotifyKm       float64
}

func (r Radii) withDefaults() Radii {
	if r.AcceptKm <= 0 {
		r.AcceptKm = DefaultAcceptRadiusKm
	}
	if r.DriverSearchKm <= 0 {
		r.DriverSearchKm = DefaultDriverSearchRadiusKm
	}
	if r.PendingKm <= 0 {
		r.PendingKm = DefaultPendingRadiusKm
	}
	if r.NotifyKm <= 0 {
		r.NotifyKm = DefaultNotifyRadiusKm
	}
	return r
}

// ─── DispatchMatcher ────────────────────────────────────────

// DispatchMatcher answers proximity questions. It never reserves anything:
// binding a driver still goes through DriverRegistry.TryClaim.
//
// All modes rank by great-circle distance ascending; ties keep the order in
// which the store returned the rows.
type DispatchMatcher struct {
	drivers  DriverStore
	bookings BookingStore
	radii    Radii
}

// NewDispatchMatcher creates a matcher.
func NewDispatchMatcher(drivers DriverStore, bookings BookingStore, radii Radii) *DispatchMatcher {
	return &DispatchMatcher{drivers: drivers, bookings: bookings, radii: radii.withDefaults()}
}

// AvailableNearby lists available drivers within radiusKm of origin
// (default 5 km), nearest first. An empty vt matches every vehicle type.
func (m *DispatchMatcher) AvailableNearby(
	ctx context.Context,
	origin model.Location,
	radiusKm float64,
	vt model.VehicleType,
) ([]model.NearbyDriver, error) {
	if !origin.Valid() {
		return nil, ErrInvalidLocation
	}
	if vt != "" && !vt.Valid() {
		return nil, ErrInvalidVehicleType
	}
	if radiusKm <= 0 {
		radiusKm = m.radii.DriverSearchKm
	}

	pool, err := m.drivers.ListAvailable(ctx, vt)
	if err != nil {
		return nil, err
	}
	ranked := geo.RankWithin(origin, pool, driverPosition, radiusKm)

	out := make([]model.NearbyDriver, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, model.NearbyDriver{
			DriverID:    r.Item.DriverID,
			VehicleType: r.Item.VehicleType,
			Location:    *r.Item.Location,
			DistanceKm:  r.DistanceKm,
		})
	}
	return out, nil
}

// NearbyPending lists requested bookings whose pickup lies within radiusKm
// (default 3 km) of the calling driver's last known location.
func (m *DispatchMatcher) NearbyPending(ctx context.Context, actor model.Actor, radiusKm float64) ([]model.NearbyBooking, error) {
	if actor.Role != model.RoleDriver {
		return nil, ErrActorNotAllowed.WithMessage("only drivers search pending bookings")
	}
	if radiusKm <= 0 {
		radiusKm = m.radii.PendingKm
	}

	d, err := m.drivers.Get(ctx, actor.ID)
	if err != nil {
		return nil, classifyError(err, ErrDriverNotFound)
	}
	if d.Location == nil {
		return nil, ErrDriverNoLocation
	}

	origin := d.Location.Point()
	pending, err := m.bookings.ListRequestedNear(ctx, origin, radiusKm)
	if err != nil {
		return nil, err
	}
	// The store applied the radius; this only attaches distances.
	ranked := geo.RankWithin(origin, pending, bookingPickup, 0)

	out := make([]model.NearbyBooking, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, model.NearbyBooking{Booking: r.Item, DistanceKm: r.DistanceKm})
	}
	return out, nil
}

// ─── Notification routing ───────────────────────────────────

// Candidate is a connected driver with a known position.
type Candidate struct {
	DriverID string
	Location model.Location
}

// SelectNotificationTarget picks the connected driver nearest to pickup. It
// reports false when there are no candidates or the nearest one is beyond
// thresholdKm, in which case the caller broadcasts to every driver.
func SelectNotificationTarget(pickup model.Location, candidates []Candidate, thresholdKm float64) (Candidate, bool) {
	ranked := geo.RankWithin(pickup, candidates, func(c Candidate) (model.Location, bool) {
		return c.Location, true
	}, 0)
	if len(ranked) == 0 || ranked[0].DistanceKm > thresholdKm {
		return Candidate{}, false
	}
	return ranked[0].Item, true
}

func driverPosition(d *model.DriverState) (model.Location, bool) {
	if d.Location == nil {
		return model.Location{}, false
	}
	return d.Location.Point(), true
}

func bookingPickup(b *model.Booking) (model.Location, bool) {
	return b.Pickup, true
}
