package httpserver

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

func TestBuildMovieFilters(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantGenre  string
		wantSearch string
		wantMin    *float64
		wantPage   repository.PageRequest
	}{
		{
			name:     "defaults",
			query:    "",
			wantPage: repository.PageRequest{Page: 1, Limit: 10},
		},
		{
			name:       "all filters",
			query:      "genre=%20Drama%20&search=dream&min_rating=3.5&page=2&limit=20",
			wantGenre:  "Drama",
			wantSearch: "dream",
			wantMin:    ptrFloat(3.5),
			wantPage:   repository.PageRequest{Page: 2, Limit: 20},
		},
		{
			name:     "limit clamped",
			query:    "limit=500",
			wantPage: repository.PageRequest{Page: 1, Limit: 50},
		},
		{
			name:     "garbage numbers ignored",
			query:    "min_rating=abc&page=-3&limit=zero",
			wantPage: repository.PageRequest{Page: 1, Limit: 10},
		},
		{
			name:     "nan min rating ignored",
			query:    "min_rating=NaN",
			wantPage: repository.PageRequest{Page: 1, Limit: 10},
		},
		{
			name:     "blank genre ignored",
			query:    "genre=%20%20",
			wantPage: repository.PageRequest{Page: 1, Limit: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("parse query: %v", err)
			}
			filters := buildMovieFilters(values)

			if got := deref(filters.Genre); got != tt.wantGenre {
				t.Fatalf("genre = %q, want %q", got, tt.wantGenre)
			}
			if got := deref(filters.Search); got != tt.wantSearch {
				t.Fatalf("search = %q, want %q", got, tt.wantSearch)
			}
			switch {
			case tt.wantMin == nil && filters.MinRating != nil:
				t.Fatalf("min_rating = %v, want nil", *filters.MinRating)
			case tt.wantMin != nil && (filters.MinRating == nil || *filters.MinRating != *tt.wantMin):
				t.Fatalf("min_rating = %v, want %v", filters.MinRating, *tt.wantMin)
			}
			if filters.Page != tt.wantPage {
				t.Fatalf("page = %+v, want %+v", filters.Page, tt.wantPage)
			}
		})
	}
}

func FuzzBuildMovieFilters(f *testing.F) {
	f.Add("Action", "matrix", "4.5", "1", "10")
	f.Add("", "", "", "", "")
	f.Add("x", "%_\\", "-1e309", "-5", "99999999999999999999")

	f.Fuzz(func(t *testing.T, genre, search, minRating, page, limit string) {
		values := url.Values{}
		values.Set("genre", genre)
		values.Set("search", search)
		values.Set("min_rating", minRating)
		values.Set("page", page)
		values.Set("limit", limit)

		filters := buildMovieFilters(values)
		if filters.Page.Page < 1 {
			t.Fatalf("page %d below 1", filters.Page.Page)
		}
		if filters.Page.Limit < 1 || filters.Page.Limit > repository.MaxPageSize {
			t.Fatalf("limit %d out of range", filters.Page.Limit)
		}
		if filters.MinRating != nil && (math.IsNaN(*filters.MinRating) || math.IsInf(*filters.MinRating, 0)) {
			t.Fatalf("non-finite min_rating accepted")
		}
	})
}

func TestRoundToTwoDecimals(t *testing.T) {
	cases := map[float64]float64{
		0:        0,
		4:        4,
		3.333333: 3.33,
		2.666666: 2.67,
		4.125:    4.13,
		1.005001: 1.01,
	}
	for in, want := range cases {
		if got := roundToTwoDecimals(in); got != want {
			t.Fatalf("roundToTwoDecimals(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestAccessToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := accessToken(req); got != "" {
		t.Fatalf("expected no token, got %q", got)
	}

	req.AddCookie(&http.Cookie{Name: accessCookie, Value: "from-cookie"})
	if got := accessToken(req); got != "from-cookie" {
		t.Fatalf("cookie token = %q", got)
	}

	req.Header.Set("Authorization", "Bearer from-header")
	if got := accessToken(req); got != "from-header" {
		t.Fatalf("header should win over cookie, got %q", got)
	}
}

func TestRespondServiceError(t *testing.T) {
	srv := &Server{logger: zerolog.Nop()}

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.NewValidationError("title", "this field is required"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{fmt.Errorf("lookup: %w", domain.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrPermission, http.StatusForbidden, "FORBIDDEN"},
		{domain.ErrDuplicate, http.StatusConflict, "CONFLICT"},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{domain.ErrInactiveAccount, http.StatusForbidden, "ACCOUNT_INACTIVE"},
		{domain.ErrExpiredToken, http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{domain.ErrRevokedToken, http.StatusUnauthorized, "TOKEN_REVOKED"},
		{domain.ErrInvalidToken, http.StatusUnauthorized, "TOKEN_INVALID"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			srv.respondServiceError(rec, req, tt.err, "do thing")

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := decode(t, rec)["code"]; got != tt.code {
				t.Fatalf("code = %v, want %s", got, tt.code)
			}
		})
	}
}

func ptrFloat(v float64) *float64 { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
