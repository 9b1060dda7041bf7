package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository"
)

// RatingInput is the body of a rating.
type RatingInput struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment,omitempty" validate:"max=500"`
}

// RatePassenger records the assigned driver's rating of the passenger.
func (s *BookingService) RatePassenger(ctx context.Context, actor model.Actor, id string, in RatingInput) (*BookingView, error) {
	return s.rate(ctx, actor, id, in, repository.RatePassenger)
}

// RateDriver records the passenger's rating of the assigned driver.
func (s *BookingService) RateDriver(ctx context.Context, actor model.Actor, id string, in RatingInput) (*BookingView, error) {
	return s.rate(ctx, actor, id, in, repository.RateDriver)
}

// rate writes one rating column of a completed booking. Each column is set
// at most once.
func (s *BookingService) rate(ctx context.Context, actor model.Actor, id string, in RatingInput, target repository.RatingTarget) (*BookingView, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, ErrInvalidRating
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var counterparty bool
	var existing *int
	switch target {
	case repository.RatePassenger:
		counterparty, existing = actor.IsDriverOf(b), b.PassengerRating
	case repository.RateDriver:
		counterparty, existing = actor.IsPassengerOf(b), b.DriverRating
	}
	if !counterparty {
		return nil, ErrNotCounterparty
	}
	if b.Status != model.StatusCompleted {
		return nil, ErrNotRateable
	}
	if existing != nil {
		return nil, ErrAlreadyRated
	}

	updated, err := s.bookings.Rate(ctx, repository.Rating{
		BookingID: id,
		Target:    target,
		Value:     in.Rating,
		Comment:   in.Comment,
		At:        s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, ErrAlreadyRated
		}
		return nil, fmt.Errorf("rate booking: %w", err)
	}

	view := s.project(ctx, updated)
	s.publish(ctx, model.EventBookingUpdate, updated, view)
	return view, nil
}
