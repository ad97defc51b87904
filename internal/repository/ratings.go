package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// RatingsRepository owns rating rows and keeps the movie aggregates in step
// with them.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

const ratingColumns = `
    r.id,
    r.movie_id,
    m.title,
    r.user_id,
    u.username,
    r.value,
    r.review,
    r.created_at,
    r.updated_at
`

const ratingJoins = `JOIN movies m ON m.id = r.movie_id JOIN users u ON u.id = r.user_id`

// RatingSubmitParams captures the payload required to upsert a rating. A nil
// Review keeps whatever review is already stored.
type RatingSubmitParams struct {
	MovieID string
	UserID  string
	Value   int
	Review  *string
}

// RatingSubmitResult is the stored rating plus the movie stats after the write.
type RatingSubmitResult struct {
	Rating  domain.Rating
	Stats   domain.MovieStats
	Created bool
}

// Submit inserts or updates the caller's rating for a movie and recomputes the
// movie stats before committing. Writers on the same movie are serialized by
// the movie row lock.
func (r *RatingsRepository) Submit(ctx context.Context, params RatingSubmitParams) (RatingSubmitResult, error) {
	query := fmt.Sprintf(`
        WITH upserted AS (
            INSERT INTO ratings (movie_id, user_id, value, review)
            VALUES ($1,$2,$3,$4)
            ON CONFLICT (movie_id, user_id)
            DO UPDATE SET value = EXCLUDED.value,
                          review = COALESCE(EXCLUDED.review, ratings.review),
                          updated_at = now()
            RETURNING *, (xmax = 0) AS inserted
        )
        SELECT %s, r.inserted
        FROM upserted r
        %s
    `, ratingColumns, ratingJoins)

	var result RatingSubmitResult
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := lockMovie(ctx, tx, params.MovieID); err != nil {
			return err
		}

		rating, inserted, err := scanRatingWith(tx.QueryRow(ctx, query, params.MovieID, params.UserID, params.Value, params.Review))
		if err != nil {
			return translate(err)
		}

		stats, err := recomputeStats(ctx, tx, params.MovieID)
		if err != nil {
			return err
		}

		result = RatingSubmitResult{Rating: rating, Stats: stats, Created: inserted}
		return nil
	})
	if err != nil {
		return RatingSubmitResult{}, err
	}
	return result, nil
}

// Remove deletes the caller's rating if present. Missing ratings are not an
// error: removed is false and the stats are returned unchanged.
func (r *RatingsRepository) Remove(ctx context.Context, movieID, userID string) (domain.MovieStats, bool, error) {
	var (
		stats   domain.MovieStats
		removed bool
	)
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := lockMovie(ctx, tx, movieID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM ratings WHERE movie_id = $1 AND user_id = $2`, movieID, userID)
		if err != nil {
			return fmt.Errorf("delete rating: %w", err)
		}
		removed = tag.RowsAffected() > 0

		stats, err = recomputeStats(ctx, tx, movieID)
		return err
	})
	if err != nil {
		return domain.MovieStats{}, false, err
	}
	return stats, removed, nil
}

// Recompute rebuilds the stats for one movie under its row lock.
func (r *RatingsRepository) Recompute(ctx context.Context, movieID string) (domain.MovieStats, error) {
	var stats domain.MovieStats
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := lockMovie(ctx, tx, movieID); err != nil {
			return err
		}
		var err error
		stats, err = recomputeStats(ctx, tx, movieID)
		return err
	})
	if err != nil {
		return domain.MovieStats{}, err
	}
	return stats, nil
}

// Aggregate computes count and average straight from the rating rows without
// touching the movie.
func (r *RatingsRepository) Aggregate(ctx context.Context, movieID string) (int64, float64, error) {
	const query = `
        SELECT COUNT(*)::int8, COALESCE(AVG(value), 0)::float8
        FROM ratings
        WHERE movie_id = $1
    `
	var (
		count int64
		avg   float64
	)
	if err := r.pool.QueryRow(ctx, query, movieID).Scan(&count, &avg); err != nil {
		return 0, 0, fmt.Errorf("aggregate ratings: %w", err)
	}
	return count, avg, nil
}

// Get retrieves the rating a user left on a movie.
func (r *RatingsRepository) Get(ctx context.Context, movieID, userID string) (domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings r %s WHERE r.movie_id = $1 AND r.user_id = $2`, ratingColumns, ratingJoins)
	rating, err := scanRating(r.pool.QueryRow(ctx, query, movieID, userID))
	if err != nil {
		return domain.Rating{}, translate(err)
	}
	return rating, nil
}

// Recent returns the newest n ratings for a movie.
func (r *RatingsRepository) Recent(ctx context.Context, movieID string, n int) ([]domain.Rating, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM ratings r %s
        WHERE r.movie_id = $1
        ORDER BY r.created_at DESC, r.id DESC
        LIMIT $2
    `, ratingColumns, ratingJoins)
	return r.collect(ctx, query, movieID, n)
}

// ListForMovie pages through a movie's ratings, newest first. Unknown movies
// yield ErrNotFound.
func (r *RatingsRepository) ListForMovie(ctx context.Context, movieID string, req PageRequest) (Page[domain.Rating], error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
        SELECT (SELECT COUNT(*) FROM ratings WHERE movie_id = m.id)
        FROM movies m
        WHERE m.id = $1
    `, movieID).Scan(&total)
	if err != nil {
		return Page[domain.Rating]{}, translate(err)
	}

	info, offset := Paginate(total, req)
	query := fmt.Sprintf(`
        SELECT %s FROM ratings r %s
        WHERE r.movie_id = $1
        ORDER BY r.created_at DESC, r.id DESC
        LIMIT $2 OFFSET $3
    `, ratingColumns, ratingJoins)
	items, err := r.collect(ctx, query, movieID, info.Limit, offset)
	if err != nil {
		return Page[domain.Rating]{}, err
	}
	return Page[domain.Rating]{Items: items, PageInfo: info}, nil
}

// ListForUser pages through every rating a user has left, newest first.
func (r *RatingsRepository) ListForUser(ctx context.Context, userID string, req PageRequest) (Page[domain.Rating], error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ratings WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return Page[domain.Rating]{}, fmt.Errorf("count ratings: %w", err)
	}

	info, offset := Paginate(total, req)
	query := fmt.Sprintf(`
        SELECT %s FROM ratings r %s
        WHERE r.user_id = $1
        ORDER BY r.created_at DESC, r.id DESC
        LIMIT $2 OFFSET $3
    `, ratingColumns, ratingJoins)
	items, err := r.collect(ctx, query, userID, info.Limit, offset)
	if err != nil {
		return Page[domain.Rating]{}, err
	}
	return Page[domain.Rating]{Items: items, PageInfo: info}, nil
}

func (r *RatingsRepository) collect(ctx context.Context, query string, args ...any) ([]domain.Rating, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Rating, 0)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rating)
	}
	return items, rows.Err()
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.ID,
		&rating.MovieID,
		&rating.MovieTitle,
		&rating.UserID,
		&rating.UserUsername,
		&rating.Value,
		&rating.Review,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	return rating, err
}

func scanRatingWith(row pgx.Row) (domain.Rating, bool, error) {
	var (
		rating   domain.Rating
		inserted bool
	)
	err := row.Scan(
		&rating.ID,
		&rating.MovieID,
		&rating.MovieTitle,
		&rating.UserID,
		&rating.UserUsername,
		&rating.Value,
		&rating.Review,
		&rating.CreatedAt,
		&rating.UpdatedAt,
		&inserted,
	)
	return rating, inserted, err
}
