package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository"
)

// ProfileView is the public part of a user profile.
type ProfileView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// BookingView is a booking with the display data of its parties.
type BookingView struct {
	*model.Booking
	Passenger ProfileView  `json:"passenger"`
	Driver    *ProfileView `json:"driver,omitempty"`
}

func (s *BookingService) project(ctx context.Context, b *model.Booking) *BookingView {
	v := &BookingView{Booking: b, Passenger: s.profile(ctx, b.PassengerID, "Passenger")}
	if b.HasDriver() {
		d := s.profile(ctx, b.DriverID, "Driver")
		v.Driver = &d
	}
	return v
}

// profile resolves display data, degrading to a generic profile when the
// identity store misses or fails.
func (s *BookingService) profile(ctx context.Context, userID, fallbackName string) ProfileView {
	generic := ProfileView{ID: userID, Name: fallbackName}
	if s.identity == nil {
		return generic
	}
	p, err := s.identity.Profile(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn(ErrIdentityLookup.Message,
				zap.String("code", ErrIdentityLookup.Code),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return generic
	}
	v := ProfileView{ID: p.ID, Name: p.Name, Phone: p.Phone, Email: p.Email}
	if v.Name == "" {
		v.Name = fallbackName
	}
	return v
}
