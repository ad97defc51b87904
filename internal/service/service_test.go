package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/logger"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

// fakeStore keeps movies and ratings in memory and maintains stats the way the
// database does: recompute after every mutation.
type fakeStore struct {
	mu      sync.Mutex
	movies  map[string]domain.Movie
	ratings map[string]map[string]domain.Rating
	nextID  int64
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		movies:  make(map[string]domain.Movie),
		ratings: make(map[string]map[string]domain.Rating),
	}
}

func (f *fakeStore) Create(_ context.Context, p repository.MovieCreateParams) (domain.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.movies {
		if m.Title == p.Title && m.ReleaseYear == p.ReleaseYear {
			return domain.Movie{}, domain.ErrDuplicate
		}
	}
	m := domain.Movie{
		ID:          "movie-" + p.Title,
		Title:       p.Title,
		Genre:       p.Genre,
		ReleaseYear: p.ReleaseYear,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   time.Now(),
	}
	f.movies[m.ID] = m
	f.ratings[m.ID] = make(map[string]domain.Rating)
	return m, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (domain.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.movies[id]
	if !ok {
		return domain.Movie{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) Delete(_ context.Context, id, requester string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.movies[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.CreatedBy != requester {
		return domain.ErrPermission
	}
	delete(f.movies, id)
	delete(f.ratings, id)
	return nil
}

func (f *fakeStore) List(_ context.Context, filters repository.MovieListFilters) (repository.Page[domain.Movie], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]domain.Movie, 0, len(f.movies))
	for _, m := range f.movies {
		items = append(items, m)
	}
	info, _ := repository.Paginate(int64(len(items)), filters.Page)
	return repository.Page[domain.Movie]{Items: items, PageInfo: info}, nil
}

func (f *fakeStore) Stats(_ context.Context, id string) (domain.MovieStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.movies[id]
	if !ok {
		return domain.MovieStats{}, domain.ErrNotFound
	}
	return m.Stats(), nil
}

func (f *fakeStore) recompute(movieID string) domain.MovieStats {
	m := f.movies[movieID]
	var sum int
	for _, r := range f.ratings[movieID] {
		sum += r.Value
	}
	m.RatingsCount = int64(len(f.ratings[movieID]))
	m.RatingsAvg = 0
	if m.RatingsCount > 0 {
		m.RatingsAvg = float64(sum) / float64(m.RatingsCount)
	}
	f.movies[movieID] = m
	return m.Stats()
}

func (f *fakeStore) Submit(_ context.Context, p repository.RatingSubmitParams) (repository.RatingSubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.RatingSubmitResult{}, f.err
	}
	if _, ok := f.movies[p.MovieID]; !ok {
		return repository.RatingSubmitResult{}, domain.ErrNotFound
	}
	existing, exists := f.ratings[p.MovieID][p.UserID]
	if !exists {
		f.nextID++
		existing = domain.Rating{ID: f.nextID, MovieID: p.MovieID, UserID: p.UserID, CreatedAt: time.Now()}
	}
	existing.Value = p.Value
	if p.Review != nil {
		existing.Review = p.Review
	}
	existing.UpdatedAt = time.Now()
	f.ratings[p.MovieID][p.UserID] = existing
	return repository.RatingSubmitResult{Rating: existing, Stats: f.recompute(p.MovieID), Created: !exists}, nil
}

func (f *fakeStore) Remove(_ context.Context, movieID, userID string) (domain.MovieStats, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.movies[movieID]; !ok {
		return domain.MovieStats{}, false, domain.ErrNotFound
	}
	_, existed := f.ratings[movieID][userID]
	delete(f.ratings[movieID], userID)
	return f.recompute(movieID), existed, nil
}

func (f *fakeStore) ratingsFor(movieID string) []domain.Rating {
	out := make([]domain.Rating, 0)
	for _, r := range f.ratings[movieID] {
		out = append(out, r)
	}
	return out
}

func (f *fakeStore) ListForMovie(_ context.Context, movieID string, req repository.PageRequest) (repository.Page[domain.Rating], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.movies[movieID]; !ok {
		return repository.Page[domain.Rating]{}, domain.ErrNotFound
	}
	items := f.ratingsFor(movieID)
	info, _ := repository.Paginate(int64(len(items)), req)
	return repository.Page[domain.Rating]{Items: items, PageInfo: info}, nil
}

func (f *fakeStore) ListForUser(_ context.Context, userID string, req repository.PageRequest) (repository.Page[domain.Rating], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]domain.Rating, 0)
	for _, byUser := range f.ratings {
		if r, ok := byUser[userID]; ok {
			items = append(items, r)
		}
	}
	info, _ := repository.Paginate(int64(len(items)), req)
	return repository.Page[domain.Rating]{Items: items, PageInfo: info}, nil
}

func (f *fakeStore) Get(_ context.Context, movieID, userID string) (domain.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ratings[movieID][userID]
	if !ok {
		return domain.Rating{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) Recent(_ context.Context, movieID string, n int) ([]domain.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.ratingsFor(movieID)
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

var (
	userA = domain.Identity{UserID: "a", Username: "usera"}
	userB = domain.Identity{UserID: "b", Username: "userb"}
	userC = domain.Identity{UserID: "c", Username: "userc"}
	userD = domain.Identity{UserID: "d", Username: "userd"}
)

func newServices() (*Catalog, *Ledger, *fakeStore) {
	store := newFakeStore()
	log := logger.Nop()
	return NewCatalog(store, store, log), NewLedger(store, store, log), store
}

func strPtr(s string) *string { return &s }

func TestCatalogCreateValidation(t *testing.T) {
	catalog, _, _ := newServices()
	ctx := context.Background()

	tests := []struct {
		name  string
		in    CreateMovieInput
		field string
	}{
		{name: "missing title", in: CreateMovieInput{Title: "  ", Genre: "Drama", ReleaseYear: 2000}, field: "title"},
		{name: "long title", in: CreateMovieInput{Title: strings.Repeat("x", 201), Genre: "Drama", ReleaseYear: 2000}, field: "title"},
		{name: "unknown genre", in: CreateMovieInput{Title: "X", Genre: "Western", ReleaseYear: 2000}, field: "genre"},
		{name: "year too early", in: CreateMovieInput{Title: "X", Genre: "Drama", ReleaseYear: 1899}, field: "release_year"},
		{name: "year too late", in: CreateMovieInput{Title: "X", Genre: "Drama", ReleaseYear: 2101}, field: "release_year"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := catalog.Create(ctx, userA, tc.in)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Contains(t, ve.Fields, tc.field)
		})
	}
}

func TestCatalogCreateAndDuplicate(t *testing.T) {
	catalog, _, _ := newServices()
	ctx := context.Background()

	movie, err := catalog.Create(ctx, userA, CreateMovieInput{Title: " Inception ", Genre: "Sci-Fi", ReleaseYear: 2010, Description: strPtr("  ")})
	require.NoError(t, err)
	assert.Equal(t, "Inception", movie.Title)
	assert.Equal(t, userA.UserID, movie.CreatedBy)
	assert.Nil(t, movie.Description, "blank description is stored as absent")

	_, err = catalog.Create(ctx, userB, CreateMovieInput{Title: "Inception", Genre: "Drama", ReleaseYear: 2010})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestCatalogDeleteOwnerOnly(t *testing.T) {
	catalog, _, _ := newServices()
	ctx := context.Background()

	movie, err := catalog.Create(ctx, userA, CreateMovieInput{Title: "Owned", Genre: "Drama", ReleaseYear: 2001})
	require.NoError(t, err)

	assert.ErrorIs(t, catalog.Delete(ctx, userD, movie.ID), domain.ErrPermission)
	_, err = catalog.Get(ctx, movie.ID)
	require.NoError(t, err, "movie must survive a refused delete")

	require.NoError(t, catalog.Delete(ctx, userA, movie.ID))
	_, err = catalog.Get(ctx, movie.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, catalog.Delete(ctx, userA, movie.ID), domain.ErrNotFound)
}

func TestLedgerInceptionScenario(t *testing.T) {
	catalog, ledger, _ := newServices()
	ctx := context.Background()

	movie, err := catalog.Create(ctx, userA, CreateMovieInput{Title: "Inception", Genre: "Sci-Fi", ReleaseYear: 2010})
	require.NoError(t, err)

	res, err := ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: 5})
	require.NoError(t, err)
	assert.True(t, res.Created)

	res, err = ledger.Submit(ctx, userC, movie.ID, SubmitRatingInput{Value: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Stats.RatingsCount)
	assert.InDelta(t, 4.0, res.Stats.RatingsAvg, 1e-9)

	res, err = ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: 1})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.EqualValues(t, 2, res.Stats.RatingsCount)
	assert.InDelta(t, 2.0, res.Stats.RatingsAvg, 1e-9)

	detail, err := catalog.Get(ctx, movie.ID)
	require.NoError(t, err)
	assert.Len(t, detail.RecentRatings, 2)

	require.NoError(t, catalog.Delete(ctx, userA, movie.ID))
	_, err = ledger.ListForMovie(ctx, movie.ID, repository.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerInvalidRerateLeavesRatingUntouched(t *testing.T) {
	catalog, ledger, store := newServices()
	ctx := context.Background()

	movie, err := catalog.Create(ctx, userA, CreateMovieInput{Title: "Stable", Genre: "Drama", ReleaseYear: 1999})
	require.NoError(t, err)
	_, err = ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: 4, Review: strPtr("good")})
	require.NoError(t, err)

	for _, value := range []int{0, 6, -1} {
		_, err = ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: value})
		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve), "value %d: got %v", value, err)
		assert.Contains(t, ve.Fields, "rating")
	}
	_, err = ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: 3, Review: strPtr(strings.Repeat("r", 2001))})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "review")

	stored := store.ratings[movie.ID][userB.UserID]
	assert.Equal(t, 4, stored.Value)
	require.NotNil(t, stored.Review)
	assert.Equal(t, "good", *stored.Review)

	stats, err := store.Stats(ctx, movie.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, stats.RatingsAvg, 1e-9)
}

func TestLedgerRemove(t *testing.T) {
	catalog, ledger, _ := newServices()
	ctx := context.Background()

	movie, err := catalog.Create(ctx, userA, CreateMovieInput{Title: "Removal", Genre: "Drama", ReleaseYear: 1999})
	require.NoError(t, err)
	_, err = ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: 2})
	require.NoError(t, err)

	stats, removed, err := ledger.Remove(ctx, userB, movie.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.EqualValues(t, 0, stats.RatingsCount)
	assert.Equal(t, 0.0, stats.RatingsAvg)

	_, removed, err = ledger.Remove(ctx, userB, movie.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, _, err = ledger.Remove(ctx, userB, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerSubmitPropagatesStoreErrors(t *testing.T) {
	catalog, ledger, store := newServices()
	ctx := context.Background()

	movie, err := catalog.Create(ctx, userA, CreateMovieInput{Title: "Broken", Genre: "Drama", ReleaseYear: 1999})
	require.NoError(t, err)

	store.err = errors.New("connection reset")
	_, err = ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: 4})
	require.Error(t, err)

	_, err = ledger.Submit(ctx, userB, "missing", SubmitRatingInput{Value: 4})
	require.Error(t, err)

	store.err = nil
	_, err = ledger.Submit(ctx, userB, "missing", SubmitRatingInput{Value: 4})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerListings(t *testing.T) {
	catalog, ledger, _ := newServices()
	ctx := context.Background()

	m1, err := catalog.Create(ctx, userA, CreateMovieInput{Title: "One", Genre: "Drama", ReleaseYear: 1999})
	require.NoError(t, err)
	m2, err := catalog.Create(ctx, userA, CreateMovieInput{Title: "Two", Genre: "Drama", ReleaseYear: 1999})
	require.NoError(t, err)

	for _, id := range []string{m1.ID, m2.ID} {
		_, err := ledger.Submit(ctx, userB, id, SubmitRatingInput{Value: 5})
		require.NoError(t, err)
	}

	mine, err := ledger.ListForUser(ctx, userB, repository.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, mine.Total)

	forMovie, err := ledger.ListForMovie(ctx, m1.ID, repository.PageRequest{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, repository.MaxPageSize, forMovie.Limit)
	assert.EqualValues(t, 1, forMovie.Stats.RatingsCount)
	assert.Len(t, forMovie.Items, 1)
}

func TestLedgerMine(t *testing.T) {
	catalog, ledger, _ := newServices()
	ctx := context.Background()

	movie, err := catalog.Create(ctx, userA, CreateMovieInput{Title: "Mine", Genre: "Comedy", ReleaseYear: 2015})
	require.NoError(t, err)
	_, err = ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: 4, Review: strPtr("fun")})
	require.NoError(t, err)

	rating, err := ledger.Mine(ctx, userB, movie.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, rating.Value)
	require.NotNil(t, rating.Review)
	assert.Equal(t, "fun", *rating.Review)

	_, err = ledger.Mine(ctx, userC, movie.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRatingValueBoundsFollowDomain(t *testing.T) {
	catalog, ledger, _ := newServices()
	ctx := context.Background()

	movie, err := catalog.Create(ctx, userA, CreateMovieInput{Title: "Bounds", Genre: domain.Genres[len(domain.Genres)-1], ReleaseYear: domain.MaxReleaseYear})
	require.NoError(t, err)

	for _, value := range []int{domain.MinRatingValue - 1, domain.MaxRatingValue + 1} {
		_, err := ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: value})
		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve), "value %d: got %v", value, err)
		assert.Contains(t, ve.Fields, "rating")
	}
	for _, value := range []int{domain.MinRatingValue, domain.MaxRatingValue} {
		_, err := ledger.Submit(ctx, userB, movie.ID, SubmitRatingInput{Value: value})
		require.NoError(t, err, "value %d", value)
	}
}
