package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository"
	"github.com/shiva/ridedispatch/pkg/geo"
	"github.com/shiva/ridedispatch/pkg/logger"
)

// ─── Default tier ───────────────────────────────────────────

// DefaultTier is used for a vehicle type with no active pricing tier.
func DefaultTier(vt model.VehicleType) model.PricingTier {
	return model.PricingTier{
		VehicleType:      vt,
		BaseFare:         2,
		PerKm:            1,
		PerMinute:        0.2,
		WaitingPerMinute: 0.1,
		SurgeMultiplier:  1,
		IsActive:         true,
	}
}

// ComputeFare applies a tier to a distance:
//
//	fare = (base + distanceKm*perKm + timeCost + waitingCost) * surge
//
// timeCost and waitingCost are reserved and always zero. The total is not
// rounded, so it always equals the sum of the returned breakdown.
func ComputeFare(tier model.PricingTier, distanceKm float64) (model.FareBreakdown, float64) {
	bd := model.FareBreakdown{
		Base:            tier.BaseFare,
		DistanceCost:    distanceKm * tier.PerKm,
		TimeCost:        0,
		WaitingCost:     0,
		SurgeMultiplier: tier.SurgeMultiplier,
	}
	total := (bd.Base + bd.DistanceCost + bd.TimeCost + bd.WaitingCost) * bd.SurgeMultiplier
	return bd, total
}

// ─── PricingService ─────────────────────────────────────────

// PricingService is the fare estimator and the pricing catalog.
type PricingService struct {
	store  PricingStore
	events EventPublisher
	now    func() time.Time
	log    *zap.Logger
}

// NewPricingService creates a pricing service. events may be nil.
func NewPricingService(store PricingStore, events EventPublisher) *PricingService {
	return &PricingService{
		store:  store,
		events: events,
		now:    time.Now,
		log:    logger.Named("pricing"),
	}
}

// ActiveTier returns the authoritative tier for vt, falling back to
// DefaultTier when none is configured or the lookup fails.
func (s *PricingService) ActiveTier(ctx context.Context, vt model.VehicleType) model.PricingTier {
	tier, err := s.store.ActiveTier(ctx, vt)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("tier lookup failed, using default", zap.String("vehicle_type", string(vt)), zap.Error(err))
		}
		return DefaultTier(vt)
	}
	return *tier
}

// Estimate computes distance and fare for a trip. It has no side effects.
func (s *PricingService) Estimate(
	ctx context.Context,
	vt model.VehicleType,
	pickup, dropoff model.Location,
) (*model.FareEstimate, error) {
	if !vt.Valid() {
		return nil, ErrInvalidVehicleType
	}
	if !pickup.Valid() || !dropoff.Valid() {
		return nil, ErrInvalidLocation
	}

	tier := s.ActiveTier(ctx, vt)
	distanceKm := geo.HaversineKm(pickup, dropoff)
	breakdown, fare := ComputeFare(tier, distanceKm)

	s.log.Debug("fare estimated",
		zap.String("vehicle_type", string(vt)),
		zap.Float64("distance_km", distanceKm),
		zap.Float64("fare", fare),
	)

	return &model.FareEstimate{
		VehicleType:      vt,
		DistanceKm:       distanceKm,
		EstimatedMinutes: math.Round(geo.EstimateTimeMinutes(pickup, dropoff)*10) / 10,
		FareEstimated:    fare,
		Breakdown:        breakdown,
	}, nil
}

// PointInput is a coordinate pair as sent by a client. Lat and Lon are
// pointers so that an omitted field is told apart from 0.
type PointInput struct {
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Address string   `json:"address,omitempty"`
}

// Resolve returns the point as a Location. It reports false when p is nil or
// either coordinate is missing; range checks are left to the caller.
func (p *PointInput) Resolve() (model.Location, bool) {
	if p == nil || p.Lat == nil || p.Lon == nil {
		return model.Location{}, false
	}
	return model.Location{Lat: *p.Lat, Lon: *p.Lon, Address: p.Address}, true
}

// ResolveTrip resolves both ends of a trip, failing with ErrInvalidLocation
// when either is absent or incomplete.
func ResolveTrip(pickup, dropoff *PointInput) (model.Location, model.Location, error) {
	from, ok := pickup.Resolve()
	if !ok {
		return model.Location{}, model.Location{}, ErrInvalidLocation.WithMessage("pickup lat and lon are required")
	}
	to, ok := dropoff.Resolve()
	if !ok {
		return model.Location{}, model.Location{}, ErrInvalidLocation.WithMessage("dropoff lat and lon are required")
	}
	return from, to, nil
}

// TierInput is the body of a pricing update.
type TierInput struct {
	BaseFare         float64 `json:"baseFare" validate:"gte=0"`
	PerKm            float64 `json:"perKm" validate:"gte=0"`
	PerMinute        float64 `json:"perMinute" validate:"gte=0"`
	WaitingPerMinute float64 `json:"waitingPerMinute" validate:"gte=0"`
	SurgeMultiplier  float64 `json:"surgeMultiplier" validate:"gt=0"`
}

// SetTier replaces the active tier of a vehicle type and publishes
// pricing:update. Admin only.
func (s *PricingService) SetTier(ctx context.Context, actor model.Actor, vt model.VehicleType, in TierInput) (*model.PricingTier, error) {
	if actor.Role != model.RoleAdmin {
		return nil, ErrActorNotAllowed
	}
	if !vt.Valid() {
		return nil, ErrInvalidVehicleType
	}
	if in.BaseFare < 0 || in.PerKm < 0 || in.PerMinute < 0 || in.WaitingPerMinute < 0 || in.SurgeMultiplier <= 0 {
		return nil, ErrInvalidTier
	}

	saved, err := s.store.SetActive(ctx, &model.PricingTier{
		ID:               uuid.NewString(),
		VehicleType:      vt,
		BaseFare:         in.BaseFare,
		PerKm:            in.PerKm,
		PerMinute:        in.PerMinute,
		WaitingPerMinute: in.WaitingPerMinute,
		SurgeMultiplier:  in.SurgeMultiplier,
		IsActive:         true,
		UpdatedAt:        s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("pricing tier updated",
		zap.String("vehicle_type", string(vt)),
		zap.Float64("surge", saved.SurgeMultiplier),
		zap.String("by", actor.ID),
	)

	if s.events != nil {
		evt := model.Event{Name: model.EventPricingUpdate, Payload: saved, At: s.now()}
		if err := s.events.Publish(ctx, evt); err != nil {
			s.log.Warn("publish pricing update failed", zap.Error(err))
		}
	}
	return saved, nil
}

// ListTiers returns the tier in force for every vehicle type, defaults
// included.
func (s *PricingService) ListTiers(ctx context.Context) ([]model.PricingTier, error) {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byType := make(map[model.VehicleType]model.PricingTier, len(active))
	for _, t := range active {
		byType[t.VehicleType] = *t
	}
	out := make([]model.PricingTier, 0, 3)
	for _, vt := range []model.VehicleType{model.VehicleMini, model.VehicleSedan, model.VehicleVan} {
		if t, ok := byType[vt]; ok {
			out = append(out, t)
			continue
		}
		out = append(out, DefaultTier(vt))
	}
	return out, nil
}
