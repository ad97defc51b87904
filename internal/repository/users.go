package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// UsersRepository persists registered identities.
type UsersRepository struct {
	pool *pgxpool.Pool
}

const userColumns = `id, email, username, password_hash, is_active, is_staff, created_at`

// UserCreateParams bundles the fields required to register a user. Email is
// expected to be normalized already.
type UserCreateParams struct {
	Email        string
	Username     string
	PasswordHash string
}

// Create inserts a new user. A taken email yields ErrDuplicate.
func (r *UsersRepository) Create(ctx context.Context, params UserCreateParams) (domain.User, error) {
	query := fmt.Sprintf(`
        INSERT INTO users (id, email, username, password_hash)
        VALUES ($1,$2,$3,$4)
        RETURNING %s
    `, userColumns)

	row := r.pool.QueryRow(ctx, query, uuid.NewString(), params.Email, params.Username, params.PasswordHash)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, translate(err)
	}
	return user, nil
}

// GetByEmail looks a user up by normalized email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return domain.User{}, translate(err)
	}
	return user, nil
}

// GetByID fetches a user by identifier.
func (r *UsersRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.User{}, translate(err)
	}
	return user, nil
}

// SetActive toggles whether the account may log in.
func (r *UsersRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsStaff,
		&user.CreatedAt,
	)
	return user, err
}
