package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/pkg/cache"
)

// ─── Redis-backed tier cache ────────────────────────────────

const (
	tierCacheKeyPrefix = "pricing:tier:"
	defaultTierTTL     = 60 * time.Second
)

// TierCache caches the active pricing tier per vehicle type in Redis.
type TierCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewTierCache creates a cache. A non-positive ttl selects 60s.
func NewTierCache(client *redis.Client, ttl time.Duration) *TierCache {
	if ttl <= 0 {
		ttl = defaultTierTTL
	}
	return &TierCache{redis: client, ttl: ttl}
}

func tierKey(vt model.VehicleType) string { return tierCacheKeyPrefix + string(vt) }

// Get returns the cached tier, or (nil, nil) on a miss.
func (c *TierCache) Get(ctx context.Context, vt model.VehicleType) (*model.PricingTier, error) {
	var tier model.PricingTier
	hit, err := cache.GetJSON(ctx, c.redis, tierKey(vt), &tier)
	if err != nil || !hit {
		return nil, err
	}
	return &tier, nil
}

// Set stores the tier with the cache TTL.
func (c *TierCache) Set(ctx context.Context, tier *model.PricingTier) error {
	return cache.SetJSON(ctx, c.redis, tierKey(tier.VehicleType), tier, c.ttl)
}

// Invalidate drops the cached tier for a vehicle type.
func (c *TierCache) Invalidate(ctx context.Context, vt model.VehicleType) error {
	return c.redis.Del(ctx, tierKey(vt)).Err()
}

// ─── PricingRepository ──────────────────────────────────────

// PricingRepository reads and writes pricing tiers. Reads go through the
// Redis cache first (cache-aside); writes invalidate the cached entry.
type PricingRepository struct {
	pool  *pgxpool.Pool
	cache *TierCache
}

// NewPricingRepository creates a new pricing repository.
func NewPricingRepository(pool *pgxpool.Pool, cache *TierCache) *PricingRepository {
	return &PricingRepository{pool: pool, cache: cache}
}

const tierColumns = `
		id::text, vehicle_type, base_fare, per_km, per_minute, waiting_per_minute,
		surge_multiplier, is_active, updated_at`

func scanTier(row pgx.Row) (*model.PricingTier, error) {
	t := &model.PricingTier{}
	err := row.Scan(&t.ID, &t.VehicleType, &t.BaseFare, &t.PerKm, &t.PerMinute,
		&t.WaitingPerMinute, &t.SurgeMultiplier, &t.IsActive, &t.UpdatedAt)
	return t, err
}

// ActiveTier returns the most recently updated active tier for vt, or
// ErrNotFound when none exists.
//
// Strategy:
//  1. Try Redis cache first.
//  2. On cache miss, query PostgreSQL, then cache the row (fire-and-forget).
func (r *PricingRepository) ActiveTier(ctx context.Context, vt model.VehicleType) (*model.PricingTier, error) {
	if r.cache != nil {
		if tier, err := r.cache.Get(ctx, vt); err == nil && tier != nil {
			return tier, nil
		}
	}

	tier, err := scanTier(r.pool.QueryRow(ctx, `
		SELECT `+tierColumns+`
		FROM pricing_tiers
		WHERE vehicle_type = $1 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`, vt))
	if err != nil {
		return nil, fmt.Errorf("active tier %s: %w", vt, translate(err))
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, tier)
	}
	return tier, nil
}

// ListActive returns every active tier ordered by vehicle type.
func (r *PricingRepository) ListActive(ctx context.Context) ([]*model.PricingTier, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (vehicle_type) `+tierColumns+`
		FROM pricing_tiers
		WHERE is_active
		ORDER BY vehicle_type, updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var out []*model.PricingTier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("list tiers: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetActive deactivates the current tier for the vehicle type and inserts
// tier as the new active one, in one transaction. Prior rows are kept.
func (r *PricingRepository) SetActive(ctx context.Context, tier *model.PricingTier) (*model.PricingTier, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("set tier: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE pricing_tiers SET is_active = false
		WHERE vehicle_type = $1 AND is_active
	`, tier.VehicleType); err != nil {
		return nil, fmt.Errorf("set tier: deactivate %s: %w", tier.VehicleType, err)
	}

	saved, err := scanTier(tx.QueryRow(ctx, `
		INSERT INTO pricing_tiers (id, vehicle_type, base_fare, per_km, per_minute,
		                           waiting_per_minute, surge_multiplier, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8)
		RETURNING `+tierColumns,
		tier.ID, tier.VehicleType, tier.BaseFare, tier.PerKm, tier.PerMinute,
		tier.WaitingPerMinute, tier.SurgeMultiplier, tier.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("set tier: insert %s: %w", tier.VehicleType, translate(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("set tier: commit: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.Invalidate(ctx, tier.VehicleType)
	}
	return saved, nil
}
