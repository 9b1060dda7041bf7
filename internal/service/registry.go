package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository"
	"github.com/shiva/ridedispatch/pkg/logger"
)

// DriverRegistry is the only writer of driver availability. Claims and
// releases are single atomic store operations.
type DriverRegistry struct {
	store DriverStore
	now   func() time.Time
	log   *zap.Logger
}

// NewDriverRegistry creates a registry over the given store.
func NewDriverRegistry(store DriverStore) *DriverRegistry {
	return &DriverRegistry{store: store, now: time.Now, log: logger.Named("registry")}
}

// Get returns a driver's state, or ErrDriverNotFound.
func (r *DriverRegistry) Get(ctx context.Context, driverID string) (*model.DriverState, error) {
	d, err := r.store.Get(ctx, driverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDriverNotFound
	}
	return d, err
}

// TryClaim marks the driver unavailable if they are available and hold no
// active booking. It reports whether the claim succeeded.
func (r *DriverRegistry) TryClaim(ctx context.Context, driverID string) (bool, error) {
	ok, err := r.store.TryClaim(ctx, driverID)
	if err != nil {
		return false, err
	}
	r.log.Debug("claim", zap.String("driver_id", driverID), zap.Bool("ok", ok))
	return ok, nil
}

// Release marks the driver available. Idempotent.
func (r *DriverRegistry) Release(ctx context.Context, driverID string) error {
	if driverID == "" {
		return nil
	}
	return r.store.Release(ctx, driverID)
}

// LocationInput is a position report from a driver. Both coordinates must
// be present.
type LocationInput struct {
	Lat         *float64          `json:"lat"`
	Lon         *float64          `json:"lon"`
	Bearing     *float64          `json:"bearing,omitempty"`
	VehicleType model.VehicleType `json:"vehicleType,omitempty"`
}

// UpdateLocation upserts the caller's position. A bearing outside [0,360] is
// ignored rather than rejected.
func (r *DriverRegistry) UpdateLocation(ctx context.Context, actor model.Actor, in LocationInput) (*model.DriverState, error) {
	if actor.Role != model.RoleDriver {
		return nil, ErrActorNotAllowed.WithMessage("only drivers report locations")
	}
	if in.Lat == nil || in.Lon == nil {
		return nil, ErrInvalidLocation.WithMessage("lat and lon are required")
	}
	loc := model.DriverLocation{Lat: *in.Lat, Lon: *in.Lon}
	if !loc.Point().Valid() {
		return nil, ErrInvalidLocation
	}
	if in.VehicleType != "" && !in.VehicleType.Valid() {
		return nil, ErrInvalidVehicleType
	}
	if in.Bearing != nil && *in.Bearing >= 0 && *in.Bearing <= 360 {
		b := *in.Bearing
		loc.Bearing = &b
	}
	return r.store.UpdateLocation(ctx, actor.ID, loc, in.VehicleType, r.now())
}

// ListAvailable returns available drivers with a known location.
func (r *DriverRegistry) ListAvailable(ctx context.Context, vt model.VehicleType) ([]*model.DriverState, error) {
	return r.store.ListAvailable(ctx, vt)
}
