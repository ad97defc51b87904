package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BlacklistRepository records revoked token ids until they expire.
type BlacklistRepository struct {
	pool *pgxpool.Pool
}

// Add blacklists jti. It reports true only for the caller whose insert won;
// a jti already present yields false. This is the check-and-set that makes
// refresh rotation succeed at most once per token.
func (r *BlacklistRepository) Add(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
        INSERT INTO token_blacklist (jti, expires_at)
        VALUES ($1,$2)
        ON CONFLICT (jti) DO NOTHING
    `, jti, expiresAt)
	if err != nil {
		return false, fmt.Errorf("blacklist token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Contains reports whether jti has been blacklisted.
func (r *BlacklistRepository) Contains(ctx context.Context, jti string) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE jti = $1)`, jti).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return found, nil
}

// PurgeExpired drops entries whose token has expired by now; such tokens fail
// verification on expiry alone.
func (r *BlacklistRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM token_blacklist WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge blacklist: %w", err)
	}
	return tag.RowsAffected(), nil
}
