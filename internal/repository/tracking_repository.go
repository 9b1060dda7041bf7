package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// trackingKey is a Redis hash of booking ID → driver ID for trips whose
// driver position is being streamed.
const trackingKey = "tracking:active"

// TrackingRepository toggles live position tracking for ongoing trips.
type TrackingRepository struct {
	redis *redis.Client
}

// NewTrackingRepository creates a tracker backed by Redis.
func NewTrackingRepository(client *redis.Client) *TrackingRepository {
	return &TrackingRepository{redis: client}
}

// Start begins tracking the driver of a booking.
func (r *TrackingRepository) Start(ctx context.Context, bookingID, driverID string) error {
	if err := r.redis.HSet(ctx, trackingKey, bookingID, driverID).Err(); err != nil {
		return fmt.Errorf("start tracking %s: %w", bookingID, err)
	}
	return nil
}

// Stop ends tracking for a booking. Stopping an untracked booking is a no-op.
func (r *TrackingRepository) Stop(ctx context.Context, bookingID string) error {
	if err := r.redis.HDel(ctx, trackingKey, bookingID).Err(); err != nil {
		return fmt.Errorf("stop tracking %s: %w", bookingID, err)
	}
	return nil
}
