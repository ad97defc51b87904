package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/metrics"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/validation"
)

// RatingStore persists ratings and recomputes movie stats in the same
// transaction.
type RatingStore interface {
	Submit(ctx context.Context, params repository.RatingSubmitParams) (repository.RatingSubmitResult, error)
	Remove(ctx context.Context, movieID, userID string) (domain.MovieStats, bool, error)
	ListForMovie(ctx context.Context, movieID string, req repository.PageRequest) (repository.Page[domain.Rating], error)
	ListForUser(ctx context.Context, userID string, req repository.PageRequest) (repository.Page[domain.Rating], error)
	Get(ctx context.Context, movieID, userID string) (domain.Rating, error)
}

// StatsReader reads a movie's stored stats.
type StatsReader interface {
	Stats(ctx context.Context, id string) (domain.MovieStats, error)
}

// Ledger records one rating per user per movie.
type Ledger struct {
	ratings  RatingStore
	stats    StatsReader
	validate *validation.Validator
	logger   zerolog.Logger
}

// SubmitRatingInput is a rate or re-rate request. A nil Review on re-rate
// keeps the stored review.
type SubmitRatingInput struct {
	Value  int     `json:"rating" validate:"rating_value"`
	Review *string `json:"review" validate:"omitempty,max=2000"`
}

// MovieRatings is a page of a movie's ratings with its current stats.
type MovieRatings struct {
	Stats domain.MovieStats
	repository.Page[domain.Rating]
}

// NewLedger wires a Ledger.
func NewLedger(ratings RatingStore, stats StatsReader, logger zerolog.Logger) *Ledger {
	return &Ledger{
		ratings:  ratings,
		stats:    stats,
		validate: validation.New(),
		logger:   logger,
	}
}

// Submit rates a movie for user, updating the existing rating if one exists.
// Invalid input is rejected before anything is written, so a bad re-rate
// leaves the stored rating untouched.
func (l *Ledger) Submit(ctx context.Context, user domain.Identity, movieID string, in SubmitRatingInput) (repository.RatingSubmitResult, error) {
	if err := l.validate.Struct(in); err != nil {
		metrics.RatingsSubmittedTotal.WithLabelValues("invalid").Inc()
		return repository.RatingSubmitResult{}, err
	}

	res, err := l.ratings.Submit(ctx, repository.RatingSubmitParams{
		MovieID: movieID,
		UserID:  user.UserID,
		Value:   in.Value,
		Review:  in.Review,
	})
	if err != nil {
		metrics.RatingsSubmittedTotal.WithLabelValues("error").Inc()
		return repository.RatingSubmitResult{}, err
	}

	result := "updated"
	if res.Created {
		result = "created"
	}
	metrics.RatingsSubmittedTotal.WithLabelValues(result).Inc()
	l.logger.Info().
		Str("movie_id", movieID).
		Str("user_id", user.UserID).
		Int("value", in.Value).
		Bool("created", res.Created).
		Int64("ratings_count", res.Stats.RatingsCount).
		Msg("rating submitted")
	return res, nil
}

// Remove deletes the user's rating on a movie. An absent rating is not an
// error; removed reports whether a row was deleted.
func (l *Ledger) Remove(ctx context.Context, user domain.Identity, movieID string) (domain.MovieStats, bool, error) {
	stats, removed, err := l.ratings.Remove(ctx, movieID, user.UserID)
	if err != nil {
		return domain.MovieStats{}, false, err
	}
	if removed {
		metrics.RatingsRemovedTotal.Inc()
		l.logger.Info().
			Str("movie_id", movieID).
			Str("user_id", user.UserID).
			Msg("rating removed")
	}
	return stats, removed, nil
}

// ListForMovie pages through a movie's ratings.
func (l *Ledger) ListForMovie(ctx context.Context, movieID string, req repository.PageRequest) (MovieRatings, error) {
	stats, err := l.stats.Stats(ctx, movieID)
	if err != nil {
		return MovieRatings{}, err
	}
	page, err := l.ratings.ListForMovie(ctx, movieID, req)
	if err != nil {
		return MovieRatings{}, err
	}
	return MovieRatings{Stats: stats, Page: page}, nil
}

// ListForUser pages through the caller's own ratings.
func (l *Ledger) ListForUser(ctx context.Context, user domain.Identity, req repository.PageRequest) (repository.Page[domain.Rating], error) {
	return l.ratings.ListForUser(ctx, user.UserID, req)
}

// Mine returns the rating user left on a movie, or domain.ErrNotFound.
func (l *Ledger) Mine(ctx context.Context, user domain.Identity, movieID string) (domain.Rating, error) {
	return l.ratings.Get(ctx, movieID, user.UserID)
}
