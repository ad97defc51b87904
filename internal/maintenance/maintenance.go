// Package maintenance holds operator tasks run outside the request path:
// auditing and rebuilding denormalized movie stats, and toggling accounts.
package maintenance

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-ratings/internal/auth"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// avgTolerance absorbs float rounding between AVG() and the stored column.
const avgTolerance = 1e-9

// Movies enumerates movies and reads their stored stats.
type Movies interface {
	IDs(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, id string) (domain.MovieStats, error)
}

// Ratings derives stats from rating rows and rewrites them under the movie lock.
type Ratings interface {
	Aggregate(ctx context.Context, movieID string) (int64, float64, error)
	Recompute(ctx context.Context, movieID string) (domain.MovieStats, error)
}

// Accounts looks users up and flips their active flag.
type Accounts interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// Drift is a movie whose stored stats disagree with its rating rows.
type Drift struct {
	Stored domain.MovieStats
	Count  int64
	Avg    float64
}

// Service runs maintenance tasks against the repositories.
type Service struct {
	movies   Movies
	ratings  Ratings
	accounts Accounts
	logger   zerolog.Logger
}

// New wires a Service.
func New(movies Movies, ratings Ratings, accounts Accounts, logger zerolog.Logger) *Service {
	return &Service{
		movies:   movies,
		ratings:  ratings,
		accounts: accounts,
		logger:   logger.With().Str("component", "maintenance").Logger(),
	}
}

// Audit compares every movie's stored stats with a fresh aggregate and
// returns the ones that drifted. It writes nothing.
func (s *Service) Audit(ctx context.Context) ([]Drift, error) {
	ids, err := s.movies.IDs(ctx)
	if err != nil {
		return nil, err
	}

	drifted := make([]Drift, 0)
	for _, id := range ids {
		stored, err := s.movies.Stats(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", id, err)
		}
		count, avg, err := s.ratings.Aggregate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("aggregate for %s: %w", id, err)
		}
		if stored.RatingsCount != count || math.Abs(stored.RatingsAvg-avg) > avgTolerance {
			drifted = append(drifted, Drift{Stored: stored, Count: count, Avg: avg})
		}
	}
	s.logger.Info().Int("movies", len(ids)).Int("drifted", len(drifted)).Msg("stats audit finished")
	return drifted, nil
}

// Repair recomputes stats for the given movies, or for every movie when none
// are named. An unknown id fails with domain.ErrNotFound.
func (s *Service) Repair(ctx context.Context, movieIDs ...string) ([]domain.MovieStats, error) {
	if len(movieIDs) == 0 {
		ids, err := s.movies.IDs(ctx)
		if err != nil {
			return nil, err
		}
		movieIDs = ids
	}

	out := make([]domain.MovieStats, 0, len(movieIDs))
	for _, id := range movieIDs {
		stats, err := s.ratings.Recompute(ctx, id)
		if err != nil {
			return out, fmt.Errorf("recompute %s: %w", id, err)
		}
		out = append(out, stats)
	}
	s.logger.Info().Int("movies", len(out)).Msg("stats recomputed")
	return out, nil
}

// SetActive enables or disables the account registered under email.
// Disabled accounts can no longer log in; tokens already issued stay valid
// until they expire.
func (s *Service) SetActive(ctx context.Context, email string, active bool) (domain.User, error) {
	user, err := s.accounts.GetByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return domain.User{}, err
	}
	if err := s.accounts.SetActive(ctx, user.ID, active); err != nil {
		return domain.User{}, err
	}
	user.IsActive = active
	s.logger.Info().Str("user_id", user.ID).Bool("active", active).Msg("account updated")
	return user, nil
}
