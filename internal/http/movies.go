package httpserver

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/service"
)

type movieResponse struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Genre             string    `json:"genre"`
	ReleaseYear       int       `json:"release_year"`
	Description       *string   `json:"description"`
	CreatedBy         string    `json:"created_by"`
	CreatedByUsername string    `json:"created_by_username"`
	RatingsCount      int64     `json:"ratings_count"`
	RatingsAvg        float64   `json:"ratings_avg"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type movieDetailResponse struct {
	movieResponse
	RecentRatings []ratingResponse `json:"recent_ratings"`
}

type movieStatsResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	RatingsCount int64   `json:"ratings_count"`
	RatingsAvg   float64 `json:"ratings_avg"`
}

type pageResponse[T any] struct {
	Items       []T   `json:"items"`
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	filters := buildMovieFilters(r.URL.Query())

	result, err := s.catalog.List(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, err, "list movies")
		return
	}

	s.respondJSON(w, http.StatusOK, toPageResponse(result, toMovieResponse))
}

// buildMovieFilters reads list filters from the query string. Unparseable
// numeric values fall back to their defaults instead of failing the request.
func buildMovieFilters(query url.Values) repository.MovieListFilters {
	filters := repository.MovieListFilters{Page: parsePageRequest(query)}

	if val := strings.TrimSpace(query.Get("genre")); val != "" {
		filters.Genre = &val
	}
	if val := strings.TrimSpace(query.Get("search")); val != "" {
		filters.Search = &val
	}
	if val := strings.TrimSpace(query.Get("min_rating")); val != "" {
		if minRating, err := strconv.ParseFloat(val, 64); err == nil && !math.IsNaN(minRating) && !math.IsInf(minRating, 0) {
			filters.MinRating = &minRating
		}
	}
	return filters
}

func parsePageRequest(query url.Values) repository.PageRequest {
	var req repository.PageRequest
	if page, err := strconv.Atoi(strings.TrimSpace(query.Get("page"))); err == nil {
		req.Page = page
	}
	if limit, err := strconv.Atoi(strings.TrimSpace(query.Get("limit"))); err == nil {
		req.Limit = limit
	}
	return req.Normalize()
}

func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	var req service.CreateMovieInput
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	movie, err := s.catalog.Create(r.Context(), identity, req)
	if err != nil {
		s.respondServiceError(w, r, err, "create movie")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/movies/%s", url.PathEscape(movie.ID)))
	s.respondJSON(w, http.StatusCreated, toMovieResponse(movie))
}

func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	detail, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err, "fetch movie")
		return
	}

	recent := make([]ratingResponse, 0, len(detail.RecentRatings))
	for _, rating := range detail.RecentRatings {
		recent = append(recent, toRatingResponse(rating))
	}
	s.respondJSON(w, http.StatusOK, movieDetailResponse{
		movieResponse: toMovieResponse(detail.Movie),
		RecentRatings: recent,
	})
}

func (s *Server) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	if err := s.catalog.Delete(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, r, err, "delete movie")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toMovieResponse(movie domain.Movie) movieResponse {
	return movieResponse{
		ID:                movie.ID,
		Title:             movie.Title,
		Genre:             movie.Genre,
		ReleaseYear:       movie.ReleaseYear,
		Description:       movie.Description,
		CreatedBy:         movie.CreatedBy,
		CreatedByUsername: movie.CreatedByUsername,
		RatingsCount:      movie.RatingsCount,
		RatingsAvg:        roundToTwoDecimals(movie.RatingsAvg),
		CreatedAt:         movie.CreatedAt,
		UpdatedAt:         movie.UpdatedAt,
	}
}

func toMovieStatsResponse(stats domain.MovieStats) movieStatsResponse {
	return movieStatsResponse{
		ID:           stats.ID,
		Title:        stats.Title,
		RatingsCount: stats.RatingsCount,
		RatingsAvg:   roundToTwoDecimals(stats.RatingsAvg),
	}
}

func toPageResponse[T, R any](page repository.Page[T], convert func(T) R) pageResponse[R] {
	items := make([]R, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return pageResponse[R]{
		Items:       items,
		Page:        page.Page,
		Limit:       page.Limit,
		Total:       page.Total,
		TotalPages:  page.TotalPages,
		HasNext:     page.HasNext,
		HasPrevious: page.HasPrevious,
	}
}

func roundToTwoDecimals(value float64) float64 {
	return math.Round(value*100) / 100
}
