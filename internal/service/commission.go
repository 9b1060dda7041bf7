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
	"github.com/shiva/ridedispatch/pkg/logger"
)

// DefaultCommissionPercent applies when no commission has been configured.
const DefaultCommissionPercent = 15.0

// CommissionLedger holds the active commission rate and derives the earnings
// written when a trip completes.
type CommissionLedger struct {
	store      CommissionStore
	defaultPct float64
	now        func() time.Time
	log        *zap.Logger
}

// NewCommissionLedger creates a ledger. A negative defaultPct selects 15%.
func NewCommissionLedger(store CommissionStore, defaultPct float64) *CommissionLedger {
	if defaultPct < 0 {
		defaultPct = DefaultCommissionPercent
	}
	return &CommissionLedger{
		store:      store,
		defaultPct: defaultPct,
		now:        time.Now,
		log:        logger.Named("commission"),
	}
}

// Active returns the active commission, or a synthetic record carrying the
// default rate when none is stored.
func (l *CommissionLedger) Active(ctx context.Context) (*model.Commission, error) {
	c, err := l.store.Active(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.Commission{Percentage: l.defaultPct, IsActive: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SetPercentage makes pct the single active commission. Previous records are
// deactivated, not removed. Admin only.
func (l *CommissionLedger) SetPercentage(ctx context.Context, actor model.Actor, pct float64) (*model.Commission, error) {
	if actor.Role != model.RoleAdmin {
		return nil, ErrActorNotAllowed
	}
	if pct < 0 || pct > 100 {
		return nil, ErrInvalidPercentage
	}
	c, err := l.store.SetActive(ctx, &model.Commission{
		ID:         uuid.NewString(),
		Percentage: pct,
		IsActive:   true,
		CreatedAt:  l.now(),
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("commission updated", zap.Float64("percentage", pct), zap.String("by", actor.ID))
	return c, nil
}

// Settle derives the driver and platform earnings for a booking that is
// about to complete. The gross is the booking's final fare (its estimate
// while the completion is still being written). The percentage in force now
// is copied into both records.
//
// Settle does not persist anything: the records travel with the
// ongoing → completed transition and are written in the same unit of work,
// at most once per booking.
func (l *CommissionLedger) Settle(ctx context.Context, b *model.Booking) (*model.Settlement, error) {
	c, err := l.Active(ctx)
	if err != nil {
		return nil, err
	}
	gross := b.FareEstimated
	if b.FareFinal != nil {
		gross = *b.FareFinal
	}
	s := ComputeSettlement(b.ID, b.DriverID, gross, c.Percentage, l.now())
	return &s, nil
}

// ComputeSettlement splits gross into commission and net. The gross is kept
// exactly as billed; only the commission is rounded to cents and net takes
// the remainder, so commission + net == gross.
func ComputeSettlement(bookingID, driverID string, gross, pct float64, at time.Time) model.Settlement {
	commission := roundCents(gross * pct / 100)
	net := gross - commission

	rec := model.Earnings{
		BookingID:        bookingID,
		DriverID:         driverID,
		GrossFare:        gross,
		CommissionAmount: commission,
		NetEarnings:      net,
		Percentage:       pct,
		CreatedAt:        at,
	}
	driver, platform := rec, rec
	driver.ID, driver.Party = uuid.NewString(), model.PartyDriver
	platform.ID, platform.Party = uuid.NewString(), model.PartyPlatform
	return model.Settlement{Driver: driver, Platform: platform}
}

// Earnings returns the persisted settlement of a booking.
func (l *CommissionLedger) Earnings(ctx context.Context, bookingID string) (*model.Settlement, error) {
	s, err := l.store.Earnings(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEarningsPending
	}
	return s, err
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
