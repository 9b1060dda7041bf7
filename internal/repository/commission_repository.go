package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/ridedispatch/internal/model"
)

// CommissionRepository stores commission percentages and reads the earnings
// written at settlement. Earnings are inserted by BookingRepository.Transition
// inside the completion transaction.
type CommissionRepository struct {
	pool *pgxpool.Pool
}

// NewCommissionRepository creates a new commission repository.
func NewCommissionRepository(pool *pgxpool.Pool) *CommissionRepository {
	return &CommissionRepository{pool: pool}
}

// Active returns the single active commission, or ErrNotFound.
func (r *CommissionRepository) Active(ctx context.Context) (*model.Commission, error) {
	c := &model.Commission{}
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, percentage, is_active, created_at
		FROM commissions
		WHERE is_active
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&c.ID, &c.Percentage, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("active commission: %w", translate(err))
	}
	return c, nil
}

// SetActive deactivates every previous commission and inserts c as active.
func (r *CommissionRepository) SetActive(ctx context.Context, c *model.Commission) (*model.Commission, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("set commission: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE commissions SET is_active = false WHERE is_active`); err != nil {
		return nil, fmt.Errorf("set commission: deactivate: %w", err)
	}

	saved := &model.Commission{}
	err = tx.QueryRow(ctx, `
		INSERT INTO commissions (id, percentage, is_active, created_at)
		VALUES ($1, $2, true, $3)
		RETURNING id::text, percentage, is_active, created_at
	`, c.ID, c.Percentage, c.CreatedAt).Scan(&saved.ID, &saved.Percentage, &saved.IsActive, &saved.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("set commission: insert: %w", translate(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("set commission: commit: %w", err)
	}
	return saved, nil
}

// Earnings returns the settlement written for a booking, or ErrNotFound.
func (r *CommissionRepository) Earnings(ctx context.Context, bookingID string) (*model.Settlement, error) {
	s := &model.Settlement{}
	if err := scanEarnings(ctx, r.pool, "driver_earnings", bookingID, &s.Driver); err != nil {
		return nil, err
	}
	if err := scanEarnings(ctx, r.pool, "admin_earnings", bookingID, &s.Platform); err != nil {
		return nil, err
	}
	s.Driver.Party = model.PartyDriver
	s.Platform.Party = model.PartyPlatform
	return s, nil
}

func scanEarnings(ctx context.Context, pool *pgxpool.Pool, table, bookingID string, e *model.Earnings) error {
	err := pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id::text, booking_id::text, driver_id, gross_fare, commission_amount,
		       net_earnings, percentage, created_at
		FROM %s
		WHERE booking_id = $1
	`, table), bookingID).Scan(
		&e.ID, &e.BookingID, &e.DriverID, &e.GrossFare, &e.CommissionAmount,
		&e.NetEarnings, &e.Percentage, &e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s for booking %s: %w", table, bookingID, translate(err))
	}
	return nil
}
