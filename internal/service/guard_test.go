package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shiva/ridedispatch/internal/model"
)

func guardBooking(status model.BookingStatus, driverID string) *model.Booking {
	return &model.Booking{
		ID:          "b1",
		PassengerID: "p1",
		DriverID:    driverID,
		Pickup:      model.Location{Lat: 9.0, Lon: 38.7},
		Status:      status,
	}
}

func nearDriver(id string) *model.DriverState {
	return &model.DriverState{
		DriverID:  id,
		Available: true,
		Location:  &model.DriverLocation{Lat: 9.001, Lon: 38.701},
	}
}

func TestDecide(t *testing.T) {
	far := nearDriver("d1")
	far.Location = &model.DriverLocation{Lat: 9.1, Lon: 38.8}
	busy := nearDriver("d1")
	idle := nearDriver("d1")
	idle.Available = false
	noLoc := nearDriver("d1")
	noLoc.Location = nil

	tests := []struct {
		name    string
		booking *model.Booking
		actor   model.Actor
		target  model.BookingStatus
		gc      GuardContext
		want    *Error
	}{
		{"driver accepts for self", guardBooking(model.StatusRequested, ""), model.Driver("d1"), model.StatusAccepted,
			GuardContext{DriverID: "d1", Driver: nearDriver("d1"), AcceptRadiusKm: 3}, nil},
		{"driver accepts for someone else", guardBooking(model.StatusRequested, ""), model.Driver("d1"), model.StatusAccepted,
			GuardContext{DriverID: "d2", Driver: nearDriver("d2"), AcceptRadiusKm: 3}, ErrActorNotAllowed},
		{"staff accept without driver", guardBooking(model.StatusRequested, ""), model.Dispatcher("x1"), model.StatusAccepted,
			GuardContext{DispatcherID: "x1", AcceptRadiusKm: 3}, ErrMissingDriver},
		{"staff accept without dispatcher", guardBooking(model.StatusRequested, ""), model.Admin("a1"), model.StatusAccepted,
			GuardContext{DriverID: "d1", Driver: nearDriver("d1"), AcceptRadiusKm: 3}, ErrMissingDispatcher},
		{"staff accept with both", guardBooking(model.StatusRequested, ""), model.Dispatcher("x1"), model.StatusAccepted,
			GuardContext{DriverID: "d1", Driver: nearDriver("d1"), DispatcherID: "x1", AcceptRadiusKm: 3}, nil},
		{"passenger cannot accept", guardBooking(model.StatusRequested, ""), model.Passenger("p1"), model.StatusAccepted,
			GuardContext{DriverID: "d1", Driver: nearDriver("d1"), AcceptRadiusKm: 3}, ErrActorNotAllowed},
		{"unknown driver", guardBooking(model.StatusRequested, ""), model.Driver("d1"), model.StatusAccepted,
			GuardContext{DriverID: "d1", AcceptRadiusKm: 3}, ErrDriverNotFound},
		{"unavailable driver", guardBooking(model.StatusRequested, ""), model.Driver("d1"), model.StatusAccepted,
			GuardContext{DriverID: "d1", Driver: idle, AcceptRadiusKm: 3}, ErrDriverUnavailable},
		{"busy driver", guardBooking(model.StatusRequested, ""), model.Driver("d1"), model.StatusAccepted,
			GuardContext{DriverID: "d1", Driver: busy, DriverHasActive: true, AcceptRadiusKm: 3}, ErrDriverBusy},
		{"driver without location", guardBooking(model.StatusRequested, ""), model.Driver("d1"), model.StatusAccepted,
			GuardContext{DriverID: "d1", Driver: noLoc, AcceptRadiusKm: 3}, ErrDriverNoLocation},
		{"driver too far", guardBooking(model.StatusRequested, ""), model.Driver("d1"), model.StatusAccepted,
			GuardContext{DriverID: "d1", Driver: far, AcceptRadiusKm: 3}, ErrDriverTooFar},
		{"accept after another driver won", guardBooking(model.StatusAccepted, "d1"), model.Driver("d2"), model.StatusAccepted,
			GuardContext{DriverID: "d2", Driver: idle, AcceptRadiusKm: 3}, ErrBookingTaken},
		{"staff accept of a taken booking", guardBooking(model.StatusAccepted, "d1"), model.Dispatcher("x1"), model.StatusAccepted,
			GuardContext{DriverID: "d2", Driver: nearDriver("d2"), DispatcherID: "x1", AcceptRadiusKm: 3}, ErrBookingTaken},

		{"assigned driver starts", guardBooking(model.StatusAccepted, "d1"), model.Driver("d1"), model.StatusOngoing, GuardContext{}, nil},
		{"other driver starts", guardBooking(model.StatusAccepted, "d1"), model.Driver("d2"), model.StatusOngoing, GuardContext{}, ErrNotAssignedDriver},
		{"passenger starts", guardBooking(model.StatusAccepted, "d1"), model.Passenger("p1"), model.StatusOngoing, GuardContext{}, ErrActorNotAllowed},
		{"start from requested", guardBooking(model.StatusRequested, ""), model.Driver("d1"), model.StatusOngoing, GuardContext{}, ErrIllegalTransition},
		{"assigned driver completes", guardBooking(model.StatusOngoing, "d1"), model.Driver("d1"), model.StatusCompleted, GuardContext{}, nil},
		{"complete from accepted", guardBooking(model.StatusAccepted, "d1"), model.Driver("d1"), model.StatusCompleted, GuardContext{}, ErrIllegalTransition},

		{"passenger cancels requested", guardBooking(model.StatusRequested, ""), model.Passenger("p1"), model.StatusCanceled, GuardContext{}, nil},
		{"other passenger cancels", guardBooking(model.StatusRequested, ""), model.Passenger("p2"), model.StatusCanceled, GuardContext{}, ErrActorNotAllowed},
		{"driver cancels accepted", guardBooking(model.StatusAccepted, "d1"), model.Driver("d1"), model.StatusCanceled, GuardContext{}, nil},
		{"dispatcher cancels accepted", guardBooking(model.StatusAccepted, "d1"), model.Dispatcher("x1"), model.StatusCanceled, GuardContext{}, nil},
		{"cancel ongoing", guardBooking(model.StatusOngoing, "d1"), model.Passenger("p1"), model.StatusCanceled, GuardContext{}, ErrIllegalTransition},

		{"completed is terminal", guardBooking(model.StatusCompleted, "d1"), model.Admin("a1"), model.StatusCanceled, GuardContext{}, ErrBookingCompleted},
		{"canceled is terminal", guardBooking(model.StatusCanceled, ""), model.Passenger("p1"), model.StatusRequested, GuardContext{}, ErrBookingCanceled},
		{"same status", guardBooking(model.StatusAccepted, "d1"), model.Driver("d1"), model.StatusAccepted, GuardContext{}, ErrIllegalTransition},
		{"back to requested", guardBooking(model.StatusAccepted, "d1"), model.Admin("a1"), model.StatusRequested, GuardContext{}, ErrIllegalTransition},
		{"unknown target", guardBooking(model.StatusRequested, ""), model.Admin("a1"), model.BookingStatus("flying"), GuardContext{}, ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.booking, tt.actor, tt.target, tt.gc)
			if tt.want == nil {
				assert.True(t, d.Allowed, "unexpected denial: %v", d.Reason)
				assert.NoError(t, d.Err())
				return
			}
			assert.False(t, d.Allowed)
			assert.ErrorIs(t, d.Err(), tt.want)
		})
	}
}

func TestDecide_CompletedMessage(t *testing.T) {
	d := Decide(guardBooking(model.StatusCompleted, "d1"), model.Driver("d1"), model.StatusOngoing, GuardContext{})
	assert.EqualError(t, d.Err(), "cannot change status of completed booking")
}

func TestDecide_AcceptRaceLoserIsAlwaysConflict(t *testing.T) {
	unavailable := nearDriver("B")
	unavailable.Available = false
	gc := GuardContext{DriverID: "B", Driver: unavailable, AcceptRadiusKm: 3}

	before := Decide(guardBooking(model.StatusRequested, ""), model.Driver("B"), model.StatusAccepted, gc)
	after := Decide(guardBooking(model.StatusAccepted, "A"), model.Driver("B"), model.StatusAccepted, gc)

	assert.Equal(t, KindConflict, before.Reason.Kind)
	assert.Equal(t, KindConflict, after.Reason.Kind)
}

func TestDecideCreate(t *testing.T) {
	assert.True(t, DecideCreate(model.Passenger("p1"), false).Allowed)
	assert.ErrorIs(t, DecideCreate(model.Passenger("p1"), true).Err(), ErrPassengerHasRequest)
	assert.ErrorIs(t, DecideCreate(model.Driver("d1"), false).Err(), ErrActorNotAllowed)
}
