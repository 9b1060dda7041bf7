package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/ridedispatch/internal/model"
)

// DriverRepository owns the driver_states table: availability and the last
// known location of every driver.
type DriverRepository struct {
	pool *pgxpool.Pool
}

// NewDriverRepository creates a new driver repository.
func NewDriverRepository(pool *pgxpool.Pool) *DriverRepository {
	return &DriverRepository{pool: pool}
}

const driverColumns = `
		driver_id, COALESCE(vehicle_type, ''), available,
		ST_Y(location), ST_X(location), bearing, updated_at`

func scanDriver(row pgx.Row) (*model.DriverState, error) {
	d := &model.DriverState{}
	var (
		lat, lon *float64
		bearing  *float64
	)
	if err := row.Scan(&d.DriverID, &d.VehicleType, &d.Available, &lat, &lon, &bearing, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		d.Location = &model.DriverLocation{Lat: *lat, Lon: *lon, Bearing: bearing}
	}
	return d, nil
}

// Get returns the state of one driver.
func (r *DriverRepository) Get(ctx context.Context, driverID string) (*model.DriverState, error) {
	d, err := scanDriver(r.pool.QueryRow(ctx,
		`SELECT `+driverColumns+` FROM driver_states WHERE driver_id = $1`, driverID))
	if err != nil {
		return nil, fmt.Errorf("get driver %s: %w", driverID, translate(err))
	}
	return d, nil
}

// ListAvailable returns available drivers with a known location, optionally
// restricted to one vehicle type. Rows come back in driver_id order so
// callers get a stable input order for distance ties.
func (r *DriverRepository) ListAvailable(ctx context.Context, vt model.VehicleType) ([]*model.DriverState, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+driverColumns+`
		FROM driver_states
		WHERE available
		  AND location IS NOT NULL
		  AND ($1 = '' OR vehicle_type = $1)
		ORDER BY driver_id
	`, string(vt))
	if err != nil {
		return nil, fmt.Errorf("list available drivers: %w", err)
	}
	defer rows.Close()

	var out []*model.DriverState
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("list available drivers: scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TryClaim atomically flips available → false when the driver is available
// and holds no accepted/ongoing booking. The check and the flip are one
// UPDATE, so two concurrent claims on the same driver cannot both succeed.
func (r *DriverRepository) TryClaim(ctx context.Context, driverID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE driver_states
		SET available = false, updated_at = now()
		WHERE driver_id = $1
		  AND available
		  AND NOT EXISTS (
		        SELECT 1 FROM bookings
		        WHERE driver_id = $1 AND status IN ('accepted', 'ongoing')
		      )
	`, driverID)
	if err != nil {
		return false, fmt.Errorf("claim driver %s: %w", driverID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release marks the driver available. Releasing an available driver is a no-op.
func (r *DriverRepository) Release(ctx context.Context, driverID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE driver_states
		SET available = true, updated_at = now()
		WHERE driver_id = $1 AND NOT available
	`, driverID)
	if err != nil {
		return fmt.Errorf("release driver %s: %w", driverID, err)
	}
	return nil
}

// UpdateLocation upserts the driver's position. A nil bearing keeps the
// stored one; an empty vehicle type keeps the stored one.
func (r *DriverRepository) UpdateLocation(
	ctx context.Context,
	driverID string,
	loc model.DriverLocation,
	vt model.VehicleType,
	at time.Time,
) (*model.DriverState, error) {
	var vehicle *string
	if vt != "" {
		s := string(vt)
		vehicle = &s
	}
	d, err := scanDriver(r.pool.QueryRow(ctx, `
		INSERT INTO driver_states (driver_id, vehicle_type, available, location, bearing, updated_at)
		VALUES ($1, $2, true, ST_SetSRID(ST_MakePoint($3, $4), 4326), $5, $6)
		ON CONFLICT (driver_id) DO UPDATE
		SET location     = EXCLUDED.location,
		    bearing      = COALESCE(EXCLUDED.bearing, driver_states.bearing),
		    vehicle_type = COALESCE(EXCLUDED.vehicle_type, driver_states.vehicle_type),
		    updated_at   = EXCLUDED.updated_at
		RETURNING `+driverColumns,
		driverID, vehicle, loc.Lon, loc.Lat, loc.Bearing, at,
	))
	if err != nil {
		return nil, fmt.Errorf("update driver location %s: %w", driverID, err)
	}
	return d, nil
}
