package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository"
	"github.com/shiva/ridedispatch/pkg/logger"
	"github.com/shiva/ridedispatch/pkg/metrics"
)

// ─── BookingService ─────────────────────────────────────────

// BookingService drives the booking lifecycle.
//
// Concurrency model:
//   - Every status change is a compare-and-swap on the persisted status, so
//     two concurrent requests for the same booking cannot both win.
//   - Binding a driver first claims the driver atomically in the registry;
//     if the booking write then loses, the claim is released again.
//   - Side effects (release, tracking, events) run only after the write
//     committed.
type BookingService struct {
	bookings BookingStore
	registry *DriverRegistry
	pricing  *PricingService
	ledger   *CommissionLedger
	identity IdentityLookup
	tracker  PositionTracker
	events   EventPublisher
	radii    Radii
	now      func() time.Time
	log      *zap.Logger
}

// BookingDeps are the collaborators of a BookingService. Identity, Tracker
// and Events may be nil.
type BookingDeps struct {
	Bookings BookingStore
	Registry *DriverRegistry
	Pricing  *PricingService
	Ledger   *CommissionLedger
	Identity IdentityLookup
	Tracker  PositionTracker
	Events   EventPublisher
	Radii    Radii
}

// NewBookingService creates a booking service.
func NewBookingService(d BookingDeps) *BookingService {
	return &BookingService{
		bookings: d.Bookings,
		registry: d.Registry,
		pricing:  d.Pricing,
		ledger:   d.Ledger,
		identity: d.Identity,
		tracker:  d.Tracker,
		events:   d.Events,
		radii:    d.Radii.withDefaults(),
		now:      time.Now,
		log:      logger.Named("booking"),
	}
}

// ─── Inputs ─────────────────────────────────────────────────

// CreateBookingInput is the body of a booking request.
type CreateBookingInput struct {
	Pickup      *PointInput       `json:"pickup"`
	Dropoff     *PointInput       `json:"dropoff"`
	VehicleType model.VehicleType `json:"vehicleType" validate:"required"`
}

// LifecycleInput is the body of a status change. DriverID and DispatcherID
// are only read when staff move a booking to accepted.
type LifecycleInput struct {
	Status       model.BookingStatus `json:"status" validate:"required"`
	DriverID     string              `json:"driverId,omitempty"`
	DispatcherID string              `json:"dispatcherId,omitempty"`
}

// AssignInput is the body of a manual assignment.
type AssignInput struct {
	DriverID     string `json:"driverId"`
	DispatcherID string `json:"dispatcherId"`
	PassengerID  string `json:"passengerId,omitempty"`
}

// ListInput narrows a listing.
type ListInput struct {
	Status model.BookingStatus
	Limit  int
}

// ─── Create / read ──────────────────────────────────────────

// Create stores a new requested booking for the calling passenger, priced
// with the active tier, and announces it.
func (s *BookingService) Create(ctx context.Context, actor model.Actor, in CreateBookingInput) (*BookingView, error) {
	if d := DecideCreate(actor, false); !d.Allowed {
		return nil, s.reject(d.Reason)
	}
	pickup, dropoff, err := ResolveTrip(in.Pickup, in.Dropoff)
	if err != nil {
		return nil, err
	}
	est, err := s.pricing.Estimate(ctx, in.VehicleType, pickup, dropoff)
	if err != nil {
		return nil, err
	}

	has, err := s.bookings.HasRequested(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	if d := DecideCreate(actor, has); !d.Allowed {
		return nil, s.reject(d.Reason)
	}

	now := s.now()
	b := &model.Booking{
		ID:            uuid.NewString(),
		PassengerID:   actor.ID,
		Pickup:        pickup,
		Dropoff:       dropoff,
		VehicleType:   in.VehicleType,
		Status:        model.StatusRequested,
		DistanceKm:    est.DistanceKm,
		FareEstimated: est.FareEstimated,
		FareBreakdown: est.Breakdown,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		// The partial unique index catches the create/create race.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, s.reject(ErrPassengerHasRequest)
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}
	metrics.BookingTransitions.WithLabelValues(string(b.Status)).Inc()

	s.log.Info("booking requested",
		zap.String("booking_id", b.ID),
		zap.String("passenger_id", b.PassengerID),
		zap.String("vehicle_type", string(b.VehicleType)),
		zap.Float64("fare_estimated", b.FareEstimated),
	)

	view := s.project(ctx, b)
	s.publish(ctx, model.EventBookingUpdate, b, view)
	s.publish(ctx, model.EventBookingNew, b, view)
	return view, nil
}

// Get returns a booking the caller may see.
func (s *BookingService) Get(ctx context.Context, actor model.Actor, id string) (*BookingView, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, b) {
		return nil, ErrActorNotAllowed
	}
	return s.project(ctx, b), nil
}

// List returns the bookings visible to the caller, newest first. Passengers
// see their own, drivers the ones assigned to them, staff everything.
func (s *BookingService) List(ctx context.Context, actor model.Actor, in ListInput) ([]*BookingView, error) {
	if in.Status != "" && !in.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	f := repository.BookingFilter{Status: in.Status, Limit: in.Limit}
	switch {
	case actor.Role == model.RolePassenger:
		f.PassengerID = actor.ID
	case actor.Role == model.RoleDriver:
		f.DriverID = actor.ID
	case actor.IsStaff():
	default:
		return nil, ErrActorNotAllowed
	}

	list, err := s.bookings.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]*BookingView, 0, len(list))
	for _, b := range list {
		out = append(out, s.project(ctx, b))
	}
	return out, nil
}

// History returns the status trail of a booking, oldest first.
func (s *BookingService) History(ctx context.Context, actor model.Actor, id string) ([]model.TripHistory, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, b) {
		return nil, ErrActorNotAllowed
	}
	h, err := s.bookings.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("booking history: %w", err)
	}
	return h, nil
}

// Earnings returns the settlement of a completed booking to its driver or
// to staff.
func (s *BookingService) Earnings(ctx context.Context, actor model.Actor, id string) (*model.Settlement, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsDriverOf(b) && !actor.IsStaff() {
		return nil, ErrActorNotAllowed
	}
	return s.ledger.Earnings(ctx, id)
}

// ─── Lifecycle ──────────────────────────────────────────────

// UpdateStatus moves a booking to in.Status on behalf of actor.
func (s *BookingService) UpdateStatus(ctx context.Context, actor model.Actor, id string, in LifecycleInput) (*BookingView, error) {
	if !in.Status.Valid() {
		return nil, s.reject(ErrInvalidStatus)
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var updated *model.Booking
	switch in.Status {
	case model.StatusAccepted:
		driverID := in.DriverID
		if actor.Role == model.RoleDriver {
			driverID = actor.ID
		}
		updated, err = s.accept(ctx, b, actor, driverID, in.DispatcherID)
	case model.StatusOngoing:
		updated, err = s.start(ctx, b, actor)
	case model.StatusCompleted:
		updated, err = s.complete(ctx, b, actor)
	case model.StatusCanceled:
		updated, err = s.cancel(ctx, b, actor)
	default:
		err = s.reject(Decide(b, actor, in.Status, GuardContext{}).Reason)
	}
	if err != nil {
		return nil, err
	}

	view := s.project(ctx, updated)
	s.publish(ctx, model.EventBookingUpdate, updated, view)
	return view, nil
}

// Assign binds a driver to a requested booking on behalf of staff and
// records who made the assignment.
func (s *BookingService) Assign(ctx context.Context, actor model.Actor, id string, in AssignInput) (*BookingView, error) {
	if !actor.IsStaff() {
		return nil, s.reject(ErrActorNotAllowed.WithMessage("only dispatchers and admins assign drivers"))
	}
	if in.DriverID == "" {
		return nil, s.reject(ErrMissingDriver)
	}
	if in.DispatcherID == "" {
		return nil, s.reject(ErrMissingDispatcher)
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.PassengerID != "" && in.PassengerID != b.PassengerID {
		return nil, s.reject(ErrPassengerMismatch)
	}

	updated, err := s.accept(ctx, b, actor, in.DriverID, in.DispatcherID)
	if err != nil {
		return nil, err
	}

	view := s.project(ctx, updated)
	s.publish(ctx, model.EventBookingUpdate, updated, view)
	s.publish(ctx, model.EventBookingAssigned, updated, view)
	return view, nil
}

// accept binds driverID to a requested booking. Staff bindings also write
// an assignment record.
func (s *BookingService) accept(ctx context.Context, b *model.Booking, actor model.Actor, driverID, dispatcherID string) (*model.Booking, error) {
	gc := GuardContext{
		DriverID:       driverID,
		DispatcherID:   dispatcherID,
		AcceptRadiusKm: s.radii.AcceptKm,
	}
	if driverID != "" {
		d, err := s.registry.Get(ctx, driverID)
		switch {
		case err == nil:
			gc.Driver = d
		case !errors.Is(err, ErrDriverNotFound):
			return nil, fmt.Errorf("load driver: %w", err)
		}
		if gc.DriverHasActive, err = s.bookings.HasActiveForDriver(ctx, driverID); err != nil {
			return nil, fmt.Errorf("check driver bookings: %w", err)
		}
	}
	if d := Decide(b, actor, model.StatusAccepted, gc); !d.Allowed {
		return nil, s.reject(d.Reason)
	}

	claimed, err := s.registry.TryClaim(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("claim driver: %w", err)
	}
	if !claimed {
		return nil, s.reject(ErrDriverUnavailable)
	}

	now := s.now()
	t := repository.Transition{
		BookingID: b.ID,
		From:      []model.BookingStatus{model.StatusRequested},
		To:        model.StatusAccepted,
		DriverID:  driverID,
		At:        now,
	}
	if actor.IsStaff() {
		t.Assignment = &model.BookingAssignment{
			ID:           uuid.NewString(),
			BookingID:    b.ID,
			DriverID:     driverID,
			DispatcherID: dispatcherID,
			PassengerID:  b.PassengerID,
			CreatedAt:    now,
		}
	}

	updated, err := s.bookings.Transition(ctx, t)
	if err != nil {
		s.release(ctx, driverID)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, s.reject(ErrDriverBusy)
		}
		return nil, s.transitionError(ctx, b.ID, err)
	}
	s.committed(updated, actor)
	return updated, nil
}

func (s *BookingService) start(ctx context.Context, b *model.Booking, actor model.Actor) (*model.Booking, error) {
	if d := Decide(b, actor, model.StatusOngoing, GuardContext{}); !d.Allowed {
		return nil, s.reject(d.Reason)
	}
	updated, err := s.bookings.Transition(ctx, repository.Transition{
		BookingID: b.ID,
		From:      []model.BookingStatus{model.StatusAccepted},
		To:        model.StatusOngoing,
		At:        s.now(),
	})
	if err != nil {
		return nil, s.transitionError(ctx, b.ID, err)
	}
	s.committed(updated, actor)

	if s.tracker != nil {
		if err := s.tracker.Start(ctx, updated.ID, updated.DriverID); err != nil {
			s.log.Warn("start tracking", zap.String("booking_id", updated.ID), zap.Error(err))
		}
	}
	return updated, nil
}

// complete settles the trip and frees the driver. The settlement is written
// with the status change, so a booking is settled at most once.
func (s *BookingService) complete(ctx context.Context, b *model.Booking, actor model.Actor) (*model.Booking, error) {
	if d := Decide(b, actor, model.StatusCompleted, GuardContext{}); !d.Allowed {
		return nil, s.reject(d.Reason)
	}
	settlement, err := s.ledger.Settle(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("settle booking: %w", err)
	}

	updated, err := s.bookings.Transition(ctx, repository.Transition{
		BookingID:  b.ID,
		From:       []model.BookingStatus{model.StatusOngoing},
		To:         model.StatusCompleted,
		At:         s.now(),
		Settlement: settlement,
	})
	if err != nil {
		return nil, s.transitionError(ctx, b.ID, err)
	}
	s.committed(updated, actor)
	metrics.Settlements.Inc()

	s.log.Info("booking settled",
		zap.String("booking_id", updated.ID),
		zap.String("driver_id", updated.DriverID),
		zap.Float64("gross", settlement.Driver.GrossFare),
		zap.Float64("commission", settlement.Driver.CommissionAmount),
		zap.Float64("percentage", settlement.Driver.Percentage),
	)

	s.release(ctx, updated.DriverID)
	s.stopTracking(ctx, updated.ID)
	return updated, nil
}

// ─── Helpers ────────────────────────────────────────────────

// load fetches a booking, mapping a miss to ErrBookingNotFound.
func (s *BookingService) load(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, classifyError(err, ErrBookingNotFound)
	}
	return b, nil
}

// transitionError explains a failed compare-and-swap by re-reading the
// booking: whoever won may have completed or canceled it.
func (s *BookingService) transitionError(ctx context.Context, id string, err error) error {
	if !errors.Is(err, repository.ErrStaleState) {
		return classifyError(err, ErrBookingNotFound)
	}
	cur, gerr := s.bookings.Get(ctx, id)
	switch {
	case gerr != nil:
		return classifyError(gerr, ErrBookingNotFound)
	case cur.Status.Terminal():
		return s.reject(terminalReason(cur.Status))
	}
	return s.reject(ErrStaleBooking)
}

func (s *BookingService) reject(reason *Error) error {
	metrics.TransitionRejections.WithLabelValues(reason.Code).Inc()
	return reason
}

func (s *BookingService) committed(b *model.Booking, actor model.Actor) {
	metrics.BookingTransitions.WithLabelValues(string(b.Status)).Inc()
	s.log.Info("booking transitioned",
		zap.String("booking_id", b.ID),
		zap.String("status", string(b.Status)),
		zap.String("driver_id", b.DriverID),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)),
	)
}

// release frees a driver after a committed change. A failure is logged:
// the booking write already succeeded and cannot be undone here.
func (s *BookingService) release(ctx context.Context, driverID string) {
	if err := s.registry.Release(ctx, driverID); err != nil {
		s.log.Error("release driver", zap.String("driver_id", driverID), zap.Error(err))
	}
}

func (s *BookingService) stopTracking(ctx context.Context, bookingID string) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Stop(ctx, bookingID); err != nil {
		s.log.Warn("stop tracking", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

func (s *BookingService) publish(ctx context.Context, name string, b *model.Booking, payload any) {
	if s.events == nil {
		return
	}
	pickup := b.Pickup
	evt := model.Event{
		Name:        name,
		BookingID:   b.ID,
		PassengerID: b.PassengerID,
		DriverID:    b.DriverID,
		Pickup:      &pickup,
		Payload:     payload,
		At:          s.now(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("publish event", zap.String("event", name), zap.String("booking_id", b.ID), zap.Error(err))
	}
}

// canView reports whether actor may read b. Drivers also see unassigned
// requested bookings so they can pick one up.
func canView(actor model.Actor, b *model.Booking) bool {
	switch {
	case actor.IsStaff(), actor.IsPassengerOf(b), actor.IsDriverOf(b):
		return true
	case actor.Role == model.RoleDriver:
		return b.Status == model.StatusRequested && !b.HasDriver()
	}
	return false
}

// classifyError maps repository sentinels to service errors. notFound is
// returned for a missing row.
func classifyError(err error, notFound *Error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrStaleState):
		return ErrStaleBooking
	case errors.Is(err, repository.ErrDuplicate):
		return ErrIllegalTransition.WithMessage("conflicting write")
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return fmt.Errorf("booking store: %w", err)
}
