package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/ridedispatch/internal/model"
)

// BookingRepository persists bookings, their assignments and trip history.
//
// Concurrency strategy: COMPARE-AND-SWAP
//
//	Scenario: two drivers accept the same requested booking at the same time.
//
//	Timeline:
//	  T1: UPDATE bookings SET status='accepted' ... WHERE id=$1 AND status='requested'  → 1 row
//	  T2: UPDATE bookings SET status='accepted' ... WHERE id=$1 AND status='requested'  → blocks on T1's row lock
//	  T1: INSERT trip_history → COMMIT
//	  T2: (unblocked) re-evaluates WHERE against the committed row → 0 rows → ErrStaleState
//
// The guard on the current status is part of the write itself, so there is no
// read-then-write window. The partial unique indexes on bookings(passenger_id)
// and bookings(driver_id) back the per-passenger and per-driver invariants.
type BookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

const bookingColumns = `
		id::text, passenger_id, driver_id,
		ST_Y(pickup), ST_X(pickup), pickup_address,
		ST_Y(dropoff), ST_X(dropoff), dropoff_address,
		vehicle_type, status, distance_km, fare_estimated, fare_final,
		fare_base, fare_distance_cost, fare_time_cost, fare_waiting_cost, fare_surge_multiplier,
		accepted_at, started_at, completed_at,
		passenger_rating, passenger_comment, driver_rating, driver_comment,
		created_at, updated_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	b := &model.Booking{}
	var driverID *string
	err := row.Scan(
		&b.ID, &b.PassengerID, &driverID,
		&b.Pickup.Lat, &b.Pickup.Lon, &b.Pickup.Address,
		&b.Dropoff.Lat, &b.Dropoff.Lon, &b.Dropoff.Address,
		&b.VehicleType, &b.Status, &b.DistanceKm, &b.FareEstimated, &b.FareFinal,
		&b.FareBreakdown.Base, &b.FareBreakdown.DistanceCost, &b.FareBreakdown.TimeCost,
		&b.FareBreakdown.WaitingCost, &b.FareBreakdown.SurgeMultiplier,
		&b.AcceptedAt, &b.StartedAt, &b.CompletedAt,
		&b.PassengerRating, &b.PassengerComment, &b.DriverRating, &b.DriverComment,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		b.DriverID = *driverID
	}
	return b, nil
}

// Create inserts a new booking in the requested state together with its
// first history row. A second requested booking for the same passenger
// violates ux_bookings_requested_passenger and yields ErrDuplicate.
func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("create booking: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (
			id, passenger_id,
			pickup, pickup_address, dropoff, dropoff_address,
			vehicle_type, status, distance_km, fare_estimated,
			fare_base, fare_distance_cost, fare_time_cost, fare_waiting_cost, fare_surge_multiplier,
			created_at, updated_at
		) VALUES (
			$1, $2,
			ST_SetSRID(ST_MakePoint($3, $4), 4326), $5,
			ST_SetSRID(ST_MakePoint($6, $7), 4326), $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $18
		)
	`,
		b.ID, b.PassengerID,
		b.Pickup.Lon, b.Pickup.Lat, b.Pickup.Address,
		b.Dropoff.Lon, b.Dropoff.Lat, b.Dropoff.Address,
		b.VehicleType, b.Status, b.DistanceKm, b.FareEstimated,
		b.FareBreakdown.Base, b.FareBreakdown.DistanceCost, b.FareBreakdown.TimeCost,
		b.FareBreakdown.WaitingCost, b.FareBreakdown.SurgeMultiplier,
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create booking: insert: %w", translate(err))
	}

	if err := insertHistory(ctx, tx, b); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("create booking: commit: %w", err)
	}
	return nil
}

// Get fetches a single booking by ID.
func (r *BookingRepository) Get(ctx context.Context, id string) (*model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	b, err := scanBooking(r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, translate(err))
	}
	return b, nil
}

// List returns bookings matching the filter, newest first.
func (r *BookingRepository) List(ctx context.Context, f BookingFilter) ([]*model.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.PassengerID != "" {
		args = append(args, f.PassengerID)
		where = append(where, fmt.Sprintf("passenger_id = $%d", len(args)))
	}
	if f.DriverID != "" {
		args = append(args, f.DriverID)
		where = append(where, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("list bookings: scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// HasRequested reports whether the passenger already has a requested booking.
func (r *BookingRepository) HasRequested(ctx context.Context, passengerID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings WHERE passenger_id = $1 AND status = 'requested'
		)
	`, passengerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has requested booking %s: %w", passengerID, err)
	}
	return exists, nil
}

// HasActiveForDriver reports whether the driver holds an accepted or ongoing booking.
func (r *BookingRepository) HasActiveForDriver(ctx context.Context, driverID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings WHERE driver_id = $1 AND status IN ('accepted', 'ongoing')
		)
	`, driverID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has active booking %s: %w", driverID, err)
	}
	return exists, nil
}

// ListRequestedNear returns requested bookings whose pickup lies within
// radiusKm of origin, nearest first.
//
// Uses the partial GIST index ix_bookings_requested_pickup via ST_DWithin.
func (r *BookingRepository) ListRequestedNear(ctx context.Context, origin model.Location, radiusKm float64) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'requested'
		  AND ST_DWithin(
		        pickup::geography,
		        ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
		        $3
		      )
		ORDER BY ST_Distance(
		    pickup::geography,
		    ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		) ASC, created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, origin.Lon, origin.Lat, radiusKm*1000)
	if err != nil {
		return nil, fmt.Errorf("list requested near: %w", err)
	}
	defer rows.Close()

	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("list requested near: scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ─── The Core Conditional Transition ────────────────────────

// Transition applies t as one conditional UPDATE plus its dependent rows in a
// single transaction. Returns ErrStaleState when the booking is no longer in
// one of t.From, and ErrDuplicate when binding the driver would give them a
// second active booking.
//
// Earnings rows are inserted with ON CONFLICT DO NOTHING on booking_id, so a
// settlement can never be written twice for the same booking.
func (r *BookingRepository) Transition(ctx context.Context, t Transition) (*model.Booking, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("transition: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	args := []any{t.BookingID, t.To, t.At, statusStrings(t.From)}
	set := ""
	switch t.To {
	case model.StatusAccepted:
		args = append(args, t.DriverID)
		set = ", driver_id = $5, accepted_at = $3"
	case model.StatusOngoing:
		set = ", started_at = $3"
	case model.StatusCompleted:
		set = ", completed_at = $3, fare_final = fare_estimated"
	}

	query := fmt.Sprintf(`
		UPDATE bookings
		SET status = $2, updated_at = $3%s
		WHERE id = $1 AND status = ANY($4)
		RETURNING %s`, set, bookingColumns)

	b, err := scanBooking(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("transition %s → %s: %w", t.BookingID, t.To, translate(err))
	}

	if err := insertHistory(ctx, tx, b); err != nil {
		return nil, err
	}

	if a := t.Assignment; a != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO booking_assignments (id, booking_id, driver_id, dispatcher_id, passenger_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, a.ID, a.BookingID, a.DriverID, a.DispatcherID, a.PassengerID, a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("transition: insert assignment: %w", err)
		}
	}

	if s := t.Settlement; s != nil {
		if err := insertEarnings(ctx, tx, "driver_earnings", s.Driver); err != nil {
			return nil, err
		}
		if err := insertEarnings(ctx, tx, "admin_earnings", s.Platform); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("transition: commit: %w", err)
	}
	return b, nil
}

// Rate writes a rating on a completed booking. The rating column must still
// be NULL, otherwise ErrStaleState is returned.
func (r *BookingRepository) Rate(ctx context.Context, rt Rating) (*model.Booking, error) {
	ratingCol, commentCol := "passenger_rating", "passenger_comment"
	if rt.Target == RateDriver {
		ratingCol, commentCol = "driver_rating", "driver_comment"
	}

	query := fmt.Sprintf(`
		UPDATE bookings
		SET %[1]s = $2, %[2]s = $3, updated_at = $4
		WHERE id = $1 AND status = 'completed' AND %[1]s IS NULL
		RETURNING %[3]s`, ratingCol, commentCol, bookingColumns)

	b, err := scanBooking(r.pool.QueryRow(ctx, query, rt.BookingID, rt.Value, rt.Comment, rt.At))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("rate booking %s: %w", rt.BookingID, err)
	}
	return b, nil
}

// DeleteUnstarted removes a booking that is still requested or accepted and
// returns it. History rows are kept.
func (r *BookingRepository) DeleteUnstarted(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `
		DELETE FROM bookings
		WHERE id = $1 AND status IN ('requested', 'accepted')
		RETURNING `+bookingColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("delete booking %s: %w", id, err)
	}
	return b, nil
}

// History returns the trip history of a booking in transition order.
func (r *BookingRepository) History(ctx context.Context, bookingID string) ([]model.TripHistory, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, booking_id::text, COALESCE(driver_id, ''), passenger_id, status, created_at
		FROM trip_history
		WHERE booking_id = $1
		ORDER BY seq
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", bookingID, err)
	}
	defer rows.Close()

	var out []model.TripHistory
	for rows.Next() {
		var h model.TripHistory
		if err := rows.Scan(&h.ID, &h.BookingID, &h.DriverID, &h.PassengerID, &h.Status, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("history %s: scan: %w", bookingID, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────

func insertHistory(ctx context.Context, tx pgx.Tx, b *model.Booking) error {
	var driverID *string
	if b.DriverID != "" {
		driverID = &b.DriverID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO trip_history (id, booking_id, driver_id, passenger_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), b.ID, driverID, b.PassengerID, b.Status, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert trip history %s: %w", b.ID, err)
	}
	return nil
}

func insertEarnings(ctx context.Context, tx pgx.Tx, table string, e model.Earnings) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, booking_id, driver_id, gross_fare, commission_amount, net_earnings, percentage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (booking_id) DO NOTHING
	`, table), e.ID, e.BookingID, e.DriverID, e.GrossFare, e.CommissionAmount, e.NetEarnings, e.Percentage, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert %s for booking %s: %w", table, e.BookingID, err)
	}
	return nil
}
