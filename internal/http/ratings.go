package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/service"
)

type ratingResponse struct {
	ID           int64     `json:"id"`
	Movie        string    `json:"movie"`
	MovieTitle   string    `json:"movie_title"`
	User         string    `json:"user"`
	UserUsername string    `json:"user_username"`
	Rating       int       `json:"rating"`
	Review       *string   `json:"review"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type submitRatingResponse struct {
	Rating ratingResponse     `json:"rating"`
	Movie  movieStatsResponse `json:"movie"`
}

type removeRatingResponse struct {
	Removed bool               `json:"removed"`
	Movie   movieStatsResponse `json:"movie"`
}

type movieRatingsResponse struct {
	Movie movieStatsResponse `json:"movie"`
	pageResponse[ratingResponse]
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	var req service.SubmitRatingInput
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	res, err := s.ledger.Submit(r.Context(), identity, chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondServiceError(w, r, err, "process rating")
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, submitRatingResponse{
		Rating: toRatingResponse(res.Rating),
		Movie:  toMovieStatsResponse(res.Stats),
	})
}

func (s *Server) handleRemoveRating(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	stats, removed, err := s.ledger.Remove(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err, "remove rating")
		return
	}
	s.respondJSON(w, http.StatusOK, removeRatingResponse{
		Removed: removed,
		Movie:   toMovieStatsResponse(stats),
	})
}

func (s *Server) handleGetMyRating(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	rating, err := s.ledger.Mine(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err, "fetch rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(rating))
}

func (s *Server) handleListMovieRatings(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.ListForMovie(r.Context(), chi.URLParam(r, "id"), parsePageRequest(r.URL.Query()))
	if err != nil {
		s.respondServiceError(w, r, err, "list ratings")
		return
	}
	s.respondJSON(w, http.StatusOK, movieRatingsResponse{
		Movie:        toMovieStatsResponse(result.Stats),
		pageResponse: toPageResponse(result.Page, toRatingResponse),
	})
}

func (s *Server) handleListUserRatings(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	result, err := s.ledger.ListForUser(r.Context(), identity, parsePageRequest(r.URL.Query()))
	if err != nil {
		s.respondServiceError(w, r, err, "list ratings")
		return
	}
	s.respondJSON(w, http.StatusOK, toPageResponse(result, toRatingResponse))
}

func toRatingResponse(rating domain.Rating) ratingResponse {
	return ratingResponse{
		ID:           rating.ID,
		Movie:        rating.MovieID,
		MovieTitle:   rating.MovieTitle,
		User:         rating.UserID,
		UserUsername: rating.UserUsername,
		Rating:       rating.Value,
		Review:       rating.Review,
		CreatedAt:    rating.CreatedAt,
		UpdatedAt:    rating.UpdatedAt,
	}
}
