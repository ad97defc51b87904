package domain

import "time"

// Genres lists the accepted movie genres.
var Genres = []string{
	"Action",
	"Comedy",
	"Drama",
	"Horror",
	"Sci-Fi",
	"Romance",
	"Thriller",
	"Fantasy",
	"Documentary",
	"Other",
}

const (
	MinReleaseYear = 1900
	MaxReleaseYear = 2100
)

// Movie represents the canonical movie entity in the database/service.
// RatingsCount and RatingsAvg are derived from the ratings table and are only
// written by the stats recompute step.
type Movie struct {
	ID                string
	Title             string
	Genre             string
	ReleaseYear       int
	Description       *string
	CreatedBy         string
	CreatedByUsername string
	RatingsCount      int64
	RatingsAvg        float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MovieStats is the snapshot of a movie's denormalized rating statistics.
type MovieStats struct {
	ID           string
	Title        string
	RatingsCount int64
	RatingsAvg   float64
}

// Stats returns the denormalized stats carried by the movie record.
func (m Movie) Stats() MovieStats {
	return MovieStats{
		ID:           m.ID,
		Title:        m.Title,
		RatingsCount: m.RatingsCount,
		RatingsAvg:   m.RatingsAvg,
	}
}

// MovieDetail is a movie together with its most recent ratings.
type MovieDetail struct {
	Movie
	RecentRatings []Rating
}
