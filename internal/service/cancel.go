package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository"
)

// cancel moves a requested or accepted booking to canceled.
//
// State transitions:
//   - requested → canceled: no driver is bound, nothing else changes.
//   - accepted  → canceled: the bound driver is released and any live
//     tracking for the trip is stopped.
//   - ongoing, completed, canceled: rejected. No earnings are written.
func (s *BookingService) cancel(ctx context.Context, b *model.Booking, actor model.Actor) (*model.Booking, error) {
	if d := Decide(b, actor, model.StatusCanceled, GuardContext{}); !d.Allowed {
		return nil, s.reject(d.Reason)
	}
	updated, err := s.bookings.Transition(ctx, repository.Transition{
		BookingID: b.ID,
		From:      []model.BookingStatus{model.StatusRequested, model.StatusAccepted},
		To:        model.StatusCanceled,
		At:        s.now(),
	})
	if err != nil {
		return nil, s.transitionError(ctx, b.ID, err)
	}
	s.committed(updated, actor)

	if updated.HasDriver() {
		s.release(ctx, updated.DriverID)
	}
	s.stopTracking(ctx, updated.ID)
	return updated, nil
}

// Delete removes a booking that has not started. Only the owning passenger
// may delete. A bound driver is released; the status trail is kept.
func (s *BookingService) Delete(ctx context.Context, actor model.Actor, id string) error {
	b, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsPassengerOf(b) {
		return s.reject(ErrActorNotAllowed.WithMessage("only the owning passenger may delete a booking"))
	}
	if b.Status != model.StatusRequested && b.Status != model.StatusAccepted {
		return s.reject(ErrCannotDelete)
	}

	deleted, err := s.bookings.DeleteUnstarted(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return s.reject(ErrCannotDelete)
		}
		return fmt.Errorf("delete booking: %w", err)
	}
	if deleted.HasDriver() {
		s.release(ctx, deleted.DriverID)
	}
	s.log.Info("booking deleted",
		zap.String("booking_id", deleted.ID),
		zap.String("status", string(deleted.Status)),
		zap.String("driver_id", deleted.DriverID),
	)

	s.publish(ctx, model.EventBookingUpdate, deleted, map[string]any{"id": deleted.ID, "deleted": true})
	return nil
}
