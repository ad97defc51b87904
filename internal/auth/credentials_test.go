package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/logger"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

type stubUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{users: make(map[string]domain.User)}
}

func (s *stubUserStore) Create(_ context.Context, params repository.UserCreateParams) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[params.Email]; exists {
		return domain.User{}, domain.ErrDuplicate
	}
	user := domain.User{
		ID:           "id-" + params.Username,
		Email:        params.Email,
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	s.users[params.Email] = user
	return user, nil
}

func (s *stubUserStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (s *stubUserStore) deactivate(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[email]
	u.IsActive = false
	s.users[email] = u
}

func newTestCredentials(t *testing.T) (*Credentials, *stubUserStore) {
	t.Helper()
	store := newStubUserStore()
	creds, err := NewCredentials(store, bcrypt.MinCost, logger.Nop())
	require.NoError(t, err)
	return creds, store
}

func TestNewCredentialsRejectsBadCost(t *testing.T) {
	for _, cost := range []int{bcrypt.MinCost - 1, bcrypt.MaxCost + 1} {
		creds, err := NewCredentials(newStubUserStore(), cost, logger.Nop())
		assert.Error(t, err, "cost %d", cost)
		assert.Nil(t, creds)
	}

	creds, err := NewCredentials(newStubUserStore(), bcrypt.MinCost, logger.Nop())
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword(creds.dummyHash, []byte("not-a-real-password")))
}

func TestRegisterHashesAndNormalizes(t *testing.T) {
	creds, _ := newTestCredentials(t)

	user, err := creds.Register(context.Background(), RegisterInput{
		Email:    "  Alice@Example.COM ",
		Username: "alice",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct-horse")))
}

func TestRegisterValidation(t *testing.T) {
	creds, _ := newTestCredentials(t)

	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{name: "bad email", in: RegisterInput{Email: "nope", Username: "bob", Password: "long-enough"}, field: "email"},
		{name: "missing username", in: RegisterInput{Email: "bob@example.com", Password: "long-enough"}, field: "username"},
		{name: "long username", in: RegisterInput{Email: "bob@example.com", Username: "abcdefghijklmnopqrstuvwxyz012345", Password: "long-enough"}, field: "username"},
		{name: "short password", in: RegisterInput{Email: "bob@example.com", Username: "bob", Password: "short"}, field: "password"},
		{name: "numeric password", in: RegisterInput{Email: "bob@example.com", Username: "bob", Password: "1234567890"}, field: "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := creds.Register(context.Background(), tc.in)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Contains(t, ve.Fields, tc.field)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	creds, _ := newTestCredentials(t)
	ctx := context.Background()

	_, err := creds.Register(ctx, RegisterInput{Email: "bob@example.com", Username: "bob", Password: "password-1"})
	require.NoError(t, err)
	_, err = creds.Register(ctx, RegisterInput{Email: "BOB@example.com", Username: "bobby", Password: "password-2"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestVerifyCredentials(t *testing.T) {
	creds, store := newTestCredentials(t)
	ctx := context.Background()

	_, err := creds.Register(ctx, RegisterInput{Email: "carol@example.com", Username: "carol", Password: "s3cret-pass"})
	require.NoError(t, err)

	user, err := creds.Verify(ctx, "Carol@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "carol", user.Username)

	_, err = creds.Verify(ctx, "carol@example.com", "wrong-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = creds.Verify(ctx, "nobody@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	store.deactivate("carol@example.com")
	_, err = creds.Verify(ctx, "carol@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, domain.ErrInactiveAccount)

	_, err = creds.Verify(ctx, "carol@example.com", "wrong-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials, "inactive status must not leak on a bad password")
}
