package service

import (
	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/pkg/geo"
)

// GuardContext is the state a transition guard needs beyond the booking.
// It is gathered by the caller before Decide runs; Decide itself does no I/O.
type GuardContext struct {
	// DriverID is the driver being bound on requested → accepted; Driver is
	// its state, nil when the id did not resolve.
	DriverID string
	Driver   *model.DriverState
	// DriverHasActive reports whether Driver holds an accepted/ongoing booking.
	DriverHasActive bool
	// DispatcherID is required when staff bind a driver.
	DispatcherID   string
	AcceptRadiusKm float64
}

// Decision is the outcome of a guard. Reason is nil when Allowed.
type Decision struct {
	Allowed bool
	Reason  *Error
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason *Error) Decision { return Decision{Reason: reason} }

// Err returns the denial reason as an error, or nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Reason
}

// Decide is the transition guard: a pure function of the current booking,
// the acting party, the target status and the gathered context.
//
//	requested → accepted    driver (self) or staff with explicit driver + dispatcher
//	accepted  → ongoing     assigned driver
//	ongoing   → completed   assigned driver
//	requested → canceled    owning passenger or staff
//	accepted  → canceled    owning passenger, assigned driver or staff
//
// Nothing leaves completed or canceled. Accepting a booking that another
// driver already holds is a conflict, so the loser of an accept race is
// refused the same way whichever request ran first. Otherwise a driver who
// is not the assigned driver is refused whatever the target.
func Decide(b *model.Booking, actor model.Actor, target model.BookingStatus, gc GuardContext) Decision {
	if !target.Valid() {
		return deny(ErrInvalidStatus)
	}
	if b.Status.Terminal() {
		return deny(terminalReason(b.Status))
	}
	if target == model.StatusAccepted && b.HasDriver() && !actor.IsDriverOf(b) {
		return deny(ErrBookingTaken)
	}
	if actor.Role == model.RoleDriver && b.HasDriver() && actor.ID != b.DriverID {
		return deny(ErrNotAssignedDriver)
	}
	if target == b.Status {
		return deny(ErrIllegalTransition.WithMessage("booking is already %s", b.Status))
	}

	switch target {
	case model.StatusAccepted:
		if b.Status != model.StatusRequested {
			return illegal(b.Status, target)
		}
		return decideAccept(b, actor, gc)

	case model.StatusOngoing:
		if b.Status != model.StatusAccepted {
			return illegal(b.Status, target)
		}
		return onlyAssignedDriver(b, actor)

	case model.StatusCompleted:
		if b.Status != model.StatusOngoing {
			return illegal(b.Status, target)
		}
		return onlyAssignedDriver(b, actor)

	case model.StatusCanceled:
		if b.Status != model.StatusRequested && b.Status != model.StatusAccepted {
			return illegal(b.Status, target)
		}
		if actor.IsPassengerOf(b) || actor.IsDriverOf(b) || actor.IsStaff() {
			return allow()
		}
		return deny(ErrActorNotAllowed)
	}

	// requested is only reachable by creating a booking.
	return illegal(b.Status, target)
}

func decideAccept(b *model.Booking, actor model.Actor, gc GuardContext) Decision {
	switch {
	case actor.Role == model.RoleDriver:
		if gc.DriverID != actor.ID {
			return deny(ErrActorNotAllowed.WithMessage("drivers may only accept for themselves"))
		}
	case actor.IsStaff():
		if gc.DriverID == "" {
			return deny(ErrMissingDriver)
		}
		if gc.DispatcherID == "" {
			return deny(ErrMissingDispatcher)
		}
	default:
		return deny(ErrActorNotAllowed)
	}

	d := gc.Driver
	if d == nil {
		return deny(ErrDriverNotFound)
	}
	if !d.Available {
		return deny(ErrDriverUnavailable)
	}
	if gc.DriverHasActive {
		return deny(ErrDriverBusy)
	}
	if d.Location == nil {
		return deny(ErrDriverNoLocation)
	}
	if dist := geo.HaversineKm(d.Location.Point(), b.Pickup); dist > gc.AcceptRadiusKm {
		return deny(ErrDriverTooFar.WithMessage(
			"driver is %.2f km from pickup, limit is %.1f km", dist, gc.AcceptRadiusKm))
	}
	return allow()
}

func onlyAssignedDriver(b *model.Booking, actor model.Actor) Decision {
	if actor.IsDriverOf(b) {
		return allow()
	}
	if actor.Role == model.RoleDriver {
		return deny(ErrNotAssignedDriver)
	}
	return deny(ErrActorNotAllowed.WithMessage("only the assigned driver may move the booking to this status"))
}

// terminalReason explains why nothing may leave a terminal status.
func terminalReason(s model.BookingStatus) *Error {
	if s == model.StatusCanceled {
		return ErrBookingCanceled
	}
	return ErrBookingCompleted
}

func illegal(from, to model.BookingStatus) Decision {
	return deny(ErrIllegalTransition.WithMessage("cannot move booking from %s to %s", from, to))
}

// DecideCreate guards the creation of a requested booking.
func DecideCreate(actor model.Actor, hasRequested bool) Decision {
	if actor.Role != model.RolePassenger {
		return deny(ErrActorNotAllowed.WithMessage("only passengers may request a booking"))
	}
	if hasRequested {
		return deny(ErrPassengerHasRequest)
	}
	return allow()
}
