// Package service holds the movie catalog and rating ledger use cases. It
// validates input, delegates persistence to the repositories and records
// metrics and logs.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/validation"
)

// RecentRatingsCount is how many ratings a movie detail carries.
const RecentRatingsCount = 5

// MovieStore is the movie persistence the catalog needs.
type MovieStore interface {
	Create(ctx context.Context, params repository.MovieCreateParams) (domain.Movie, error)
	GetByID(ctx context.Context, id string) (domain.Movie, error)
	Delete(ctx context.Context, id, requester string) error
	List(ctx context.Context, filters repository.MovieListFilters) (repository.Page[domain.Movie], error)
}

// RecentRatings returns the newest ratings for a movie.
type RecentRatings interface {
	Recent(ctx context.Context, movieID string, n int) ([]domain.Rating, error)
}

// Catalog creates, deletes and lists movies.
type Catalog struct {
	movies   MovieStore
	ratings  RecentRatings
	validate *validation.Validator
	logger   zerolog.Logger
}

// CreateMovieInput is the client-supplied part of a new movie.
type CreateMovieInput struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Genre       string  `json:"genre" validate:"required,genre"`
	ReleaseYear int     `json:"release_year" validate:"release_year"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}

// NewCatalog wires a Catalog.
func NewCatalog(movies MovieStore, ratings RecentRatings, logger zerolog.Logger) *Catalog {
	return &Catalog{
		movies:   movies,
		ratings:  ratings,
		validate: validation.New(),
		logger:   logger,
	}
}

// Create stores a movie owned by owner. A clash on title and release year
// yields domain.ErrDuplicate.
func (c *Catalog) Create(ctx context.Context, owner domain.Identity, in CreateMovieInput) (domain.Movie, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Description != nil && strings.TrimSpace(*in.Description) == "" {
		in.Description = nil
	}
	if err := c.validate.Struct(in); err != nil {
		return domain.Movie{}, err
	}

	movie, err := c.movies.Create(ctx, repository.MovieCreateParams{
		Title:       in.Title,
		Genre:       in.Genre,
		ReleaseYear: in.ReleaseYear,
		Description: in.Description,
		CreatedBy:   owner.UserID,
	})
	if err != nil {
		return domain.Movie{}, err
	}

	c.logger.Info().
		Str("movie_id", movie.ID).
		Str("owner_id", owner.UserID).
		Msg("movie created")
	return movie, nil
}

// Delete removes a movie and, through the cascade, its ratings. Only the
// owner may delete.
func (c *Catalog) Delete(ctx context.Context, requester domain.Identity, movieID string) error {
	if err := c.movies.Delete(ctx, movieID, requester.UserID); err != nil {
		if errors.Is(err, domain.ErrPermission) {
			c.logger.Warn().
				Str("movie_id", movieID).
				Str("requester_id", requester.UserID).
				Msg("delete refused for non-owner")
		}
		return err
	}
	c.logger.Info().Str("movie_id", movieID).Msg("movie deleted")
	return nil
}

// Get returns the movie with its most recent ratings.
func (c *Catalog) Get(ctx context.Context, movieID string) (domain.MovieDetail, error) {
	movie, err := c.movies.GetByID(ctx, movieID)
	if err != nil {
		return domain.MovieDetail{}, err
	}
	recent, err := c.ratings.Recent(ctx, movieID, RecentRatingsCount)
	if err != nil {
		return domain.MovieDetail{}, err
	}
	return domain.MovieDetail{Movie: movie, RecentRatings: recent}, nil
}

// List returns a page of movies ordered by average rating.
func (c *Catalog) List(ctx context.Context, filters repository.MovieListFilters) (repository.Page[domain.Movie], error) {
	return c.movies.List(ctx, filters)
}
