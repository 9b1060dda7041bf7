package service

import (
	"context"
	"time"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository"
)

// BookingStore persists bookings. Implemented by repository.BookingRepository
// and repository.MemoryBookings.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	Get(ctx context.Context, id string) (*model.Booking, error)
	List(ctx context.Context, f repository.BookingFilter) ([]*model.Booking, error)
	HasRequested(ctx context.Context, passengerID string) (bool, error)
	HasActiveForDriver(ctx context.Context, driverID string) (bool, error)
	ListRequestedNear(ctx context.Context, origin model.Location, radiusKm float64) ([]*model.Booking, error)
	Transition(ctx context.Context, t repository.Transition) (*model.Booking, error)
	Rate(ctx context.Context, r repository.Rating) (*model.Booking, error)
	DeleteUnstarted(ctx context.Context, id string) (*model.Booking, error)
	History(ctx context.Context, bookingID string) ([]model.TripHistory, error)
}

// DriverStore persists driver availability and location.
type DriverStore interface {
	Get(ctx context.Context, driverID string) (*model.DriverState, error)
	ListAvailable(ctx context.Context, vt model.VehicleType) ([]*model.DriverState, error)
	TryClaim(ctx context.Context, driverID string) (bool, error)
	Release(ctx context.Context, driverID string) error
	UpdateLocation(ctx context.Context, driverID string, loc model.DriverLocation, vt model.VehicleType, at time.Time) (*model.DriverState, error)
}

// PricingStore persists pricing tiers.
type PricingStore interface {
	ActiveTier(ctx context.Context, vt model.VehicleType) (*model.PricingTier, error)
	ListActive(ctx context.Context) ([]*model.PricingTier, error)
	SetActive(ctx context.Context, tier *model.PricingTier) (*model.PricingTier, error)
}

// CommissionStore persists commission rates and exposes settled earnings.
type CommissionStore interface {
	Active(ctx context.Context) (*model.Commission, error)
	SetActive(ctx context.Context, c *model.Commission) (*model.Commission, error)
	Earnings(ctx context.Context, bookingID string) (*model.Settlement, error)
}

// IdentityLookup resolves display data for a user id.
type IdentityLookup interface {
	Profile(ctx context.Context, userID string) (*model.Profile, error)
}

// PositionTracker switches live position tracking for a trip on and off.
type PositionTracker interface {
	Start(ctx context.Context, bookingID, driverID string) error
	Stop(ctx context.Context, bookingID string) error
}

// EventPublisher delivers named engine events to whoever listens.
type EventPublisher interface {
	Publish(ctx context.Context, evt model.Event) error
}
