package domain

import "time"

const (
	MinRatingValue = 1
	MaxRatingValue = 5
)

// Rating represents a single user's rating for a movie.
type Rating struct {
	ID           int64
	MovieID      string
	MovieTitle   string
	UserID       string
	UserUsername string
	Value        int
	Review       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
