package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/metrics"
)

// recomputeStats rewrites ratings_count and ratings_avg from the current rating
// rows. Callers must hold the movie row lock on q so that the read and the
// write observe the same rating set.
func recomputeStats(ctx context.Context, q querier, movieID string) (domain.MovieStats, error) {
	const query = `
        WITH s AS (
            SELECT COUNT(*)::int8 AS cnt,
                   COALESCE(AVG(value), 0)::float8 AS avg
            FROM ratings
            WHERE movie_id = $1
        )
        UPDATE movies
        SET ratings_count = s.cnt, ratings_avg = s.avg
        FROM s
        WHERE movies.id = $1
        RETURNING movies.id, movies.title, movies.ratings_count, movies.ratings_avg
    `

	start := time.Now()
	defer func() { metrics.StatsRecomputeDuration.Observe(time.Since(start).Seconds()) }()

	var stats domain.MovieStats
	err := q.QueryRow(ctx, query, movieID).Scan(&stats.ID, &stats.Title, &stats.RatingsCount, &stats.RatingsAvg)
	if err != nil {
		return domain.MovieStats{}, fmt.Errorf("recompute stats: %w", translate(err))
	}
	return stats, nil
}
