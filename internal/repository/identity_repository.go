package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/ridedispatch/internal/model"
)

// IdentityRepository reads display data from the users table owned by the
// identity service. The engine never writes to it.
type IdentityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository creates a new identity reader.
func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Profile returns name, phone and email for a user, or ErrNotFound.
func (r *IdentityRepository) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, '')
		FROM users
		WHERE id = $1
	`, userID).Scan(&p.ID, &p.Name, &p.Phone, &p.Email)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", userID, translate(err))
	}
	return p, nil
}
