package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// MoviesRepository provides persistence helpers for movie entities.
type MoviesRepository struct {
	pool *pgxpool.Pool
}

const movieColumns = `
    m.id,
    m.title,
    m.genre,
    m.release_year,
    m.description,
    m.created_by,
    u.username,
    m.ratings_count,
    m.ratings_avg,
    m.created_at,
    m.updated_at
`

// MovieCreateParams bundles the fields required to create a movie.
type MovieCreateParams struct {
	Title       string
	Genre       string
	ReleaseYear int
	Description *string
	CreatedBy   string
}

// MovieListFilters encapsulates search and pagination options.
type MovieListFilters struct {
	Genre     *string
	Search    *string
	MinRating *float64
	Page      PageRequest
}

// Create inserts a new movie row and returns the stored entity. A clash on
// (title, release_year) yields ErrDuplicate.
func (r *MoviesRepository) Create(ctx context.Context, params MovieCreateParams) (domain.Movie, error) {
	query := fmt.Sprintf(`
        WITH inserted AS (
            INSERT INTO movies (id, title, genre, release_year, description, created_by)
            VALUES ($1,$2,$3,$4,$5,$6)
            RETURNING *
        )
        SELECT %s
        FROM inserted m
        JOIN users u ON u.id = m.created_by
    `, movieColumns)

	row := r.pool.QueryRow(ctx, query, uuid.NewString(), params.Title, params.Genre, params.ReleaseYear, params.Description, params.CreatedBy)
	movie, err := scanMovie(row)
	if err != nil {
		return domain.Movie{}, translate(err)
	}
	return movie, nil
}

// GetByID fetches a movie by its identifier.
func (r *MoviesRepository) GetByID(ctx context.Context, id string) (domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies m JOIN users u ON u.id = m.created_by WHERE m.id = $1`, movieColumns)
	movie, err := scanMovie(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Movie{}, translate(err)
	}
	return movie, nil
}

// Stats returns the denormalized rating stats currently stored on the movie.
func (r *MoviesRepository) Stats(ctx context.Context, id string) (domain.MovieStats, error) {
	const query = `SELECT id, title, ratings_count, ratings_avg FROM movies WHERE id = $1`
	var stats domain.MovieStats
	err := r.pool.QueryRow(ctx, query, id).Scan(&stats.ID, &stats.Title, &stats.RatingsCount, &stats.RatingsAvg)
	if err != nil {
		return domain.MovieStats{}, translate(err)
	}
	return stats, nil
}

// Delete removes a movie owned by requester; its ratings go with it through
// the cascading foreign key. The row lock keeps a concurrent rating mutation
// from interleaving with the ownership check.
func (r *MoviesRepository) Delete(ctx context.Context, id, requester string) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		owner, err := lockMovie(ctx, tx, id)
		if err != nil {
			return err
		}
		if owner != requester {
			return domain.ErrPermission
		}
		if _, err := tx.Exec(ctx, `DELETE FROM movies WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete movie: %w", err)
		}
		return nil
	})
}

// List returns movies that match the provided filters ordered by average
// rating, newest first among equals.
func (r *MoviesRepository) List(ctx context.Context, filters MovieListFilters) (Page[domain.Movie], error) {
	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Genre != nil && strings.TrimSpace(*filters.Genre) != "" {
		where = append(where, fmt.Sprintf("LOWER(m.genre) = LOWER(%s)", arg(strings.TrimSpace(*filters.Genre))))
	}
	if filters.Search != nil && strings.TrimSpace(*filters.Search) != "" {
		p := arg("%" + escapeLike(strings.TrimSpace(*filters.Search)) + "%")
		where = append(where, fmt.Sprintf("(m.title ILIKE %s OR m.description ILIKE %s)", p, p))
	}
	if filters.MinRating != nil {
		where = append(where, fmt.Sprintf("m.ratings_avg >= %s", arg(*filters.MinRating)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM movies m" + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page[domain.Movie]{}, fmt.Errorf("count movies: %w", err)
	}

	info, offset := Paginate(total, filters.Page)

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(movieColumns)
	queryBuilder.WriteString(" FROM movies m JOIN users u ON u.id = m.created_by")
	queryBuilder.WriteString(whereClause)
	queryBuilder.WriteString(" ORDER BY m.ratings_avg DESC, m.created_at DESC, m.id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", info.Limit, offset))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return Page[domain.Movie]{}, fmt.Errorf("list movies: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Movie, 0, info.Limit)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return Page[domain.Movie]{}, err
		}
		items = append(items, movie)
	}
	if err := rows.Err(); err != nil {
		return Page[domain.Movie]{}, err
	}

	return Page[domain.Movie]{Items: items, PageInfo: info}, nil
}

// IDs returns every movie id, oldest first.
func (r *MoviesRepository) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM movies ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list movie ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan movie ids: %w", err)
	}
	return ids, nil
}

// lockMovie takes the per-movie row lock for the rest of tx and returns the
// owner id.
func lockMovie(ctx context.Context, tx pgx.Tx, movieID string) (string, error) {
	var owner string
	err := tx.QueryRow(ctx, `SELECT created_by FROM movies WHERE id = $1 FOR UPDATE`, movieID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lock movie: %w", err)
	}
	return owner, nil
}

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var movie domain.Movie
	err := row.Scan(
		&movie.ID,
		&movie.Title,
		&movie.Genre,
		&movie.ReleaseYear,
		&movie.Description,
		&movie.CreatedBy,
		&movie.CreatedByUsername,
		&movie.RatingsCount,
		&movie.RatingsAvg,
		&movie.CreatedAt,
		&movie.UpdatedAt,
	)
	if err != nil {
		return domain.Movie{}, err
	}
	return movie, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
