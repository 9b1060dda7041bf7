package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service error for the transport layer.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	// KindForbidden is the wrong-actor flavor of a conflict.
	KindForbidden
	KindNotFound
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindDependency:
		return "dependency"
	}
	return "unknown"
}

// Error is a structured rejection. Code is a stable machine-readable string,
// Message the human-readable reason.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error with the same Code, so errors.Is works against the
// sentinels below even after WithMessage.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or 0 for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ─── Validation ─────────────────────────────────────────────

var (
	ErrInvalidVehicleType = &Error{KindValidation, "invalid_vehicle_type", "vehicle type must be one of mini, sedan, van"}
	ErrInvalidLocation    = &Error{KindValidation, "invalid_location", "pickup and dropoff must be valid coordinates"}
	ErrInvalidStatus      = &Error{KindValidation, "invalid_status", "unknown booking status"}
	ErrInvalidRating      = &Error{KindValidation, "invalid_rating", "rating must be between 1 and 5"}
	ErrMissingDriver      = &Error{KindValidation, "missing_driver", "driverId is required"}
	ErrMissingDispatcher  = &Error{KindValidation, "missing_dispatcher", "dispatcherId is required"}
	ErrPassengerMismatch  = &Error{KindValidation, "passenger_mismatch", "passengerId does not match the booking"}
	ErrInvalidTier        = &Error{KindValidation, "invalid_tier", "pricing values must be non-negative and surge multiplier positive"}
	ErrInvalidPercentage  = &Error{KindValidation, "invalid_percentage", "commission percentage must be between 0 and 100"}
)

// ─── Conflict ───────────────────────────────────────────────

var (
	ErrPassengerHasRequest = &Error{KindConflict, "passenger_has_request", "passenger already has a requested booking"}
	ErrDriverUnavailable   = &Error{KindConflict, "driver_unavailable", "driver is not available"}
	ErrDriverBusy          = &Error{KindConflict, "driver_busy", "driver already has an active booking"}
	ErrDriverTooFar        = &Error{KindConflict, "driver_too_far", "driver is too far from pickup"}
	ErrDriverNoLocation    = &Error{KindConflict, "driver_location_unknown", "driver has no known location"}
	ErrBookingCompleted    = &Error{KindConflict, "booking_completed", "cannot change status of completed booking"}
	ErrBookingCanceled     = &Error{KindConflict, "booking_canceled", "cannot change status of canceled booking"}
	ErrBookingTaken        = &Error{KindConflict, "booking_taken", "booking was accepted by another driver"}
	ErrIllegalTransition   = &Error{KindConflict, "illegal_transition", "transition not allowed"}
	ErrStaleBooking        = &Error{KindConflict, "stale_booking", "booking was changed by another request"}
	ErrNotRateable         = &Error{KindConflict, "not_rateable", "only completed bookings can be rated"}
	ErrAlreadyRated        = &Error{KindConflict, "already_rated", "rating already submitted"}
	ErrCannotDelete        = &Error{KindConflict, "cannot_delete", "only requested or accepted bookings can be deleted"}
)

// ─── Forbidden ──────────────────────────────────────────────

var (
	ErrNotAssignedDriver = &Error{KindForbidden, "not_assigned_driver", "booking is assigned to another driver"}
	ErrActorNotAllowed   = &Error{KindForbidden, "actor_not_allowed", "caller may not perform this action"}
	ErrNotCounterparty   = &Error{KindForbidden, "not_counterparty", "only the counterparty of the trip may rate"}
)

// ─── Not found / dependency ─────────────────────────────────

var (
	ErrBookingNotFound = &Error{KindNotFound, "booking_not_found", "booking not found"}
	ErrDriverNotFound  = &Error{KindNotFound, "driver_not_found", "driver not found"}
	ErrEarningsPending = &Error{KindNotFound, "earnings_not_found", "no earnings recorded for booking"}

	ErrIdentityLookup = &Error{KindDependency, "identity_unavailable", "identity lookup failed"}
)
