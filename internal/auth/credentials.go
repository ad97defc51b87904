package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/metrics"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/validation"
)

// UserStore is the persistence Credentials needs.
type UserStore interface {
	Create(ctx context.Context, params repository.UserCreateParams) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
}

// Credentials registers identities and checks passwords against their bcrypt
// hashes.
type Credentials struct {
	users    UserStore
	cost     int
	validate *validation.Validator
	logger   zerolog.Logger

	// compared against on unknown emails so both failure paths cost a bcrypt run
	dummyHash []byte
}

// RegisterInput is what a new account supplies.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,max=30"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// NewCredentials returns a credential store hashing with the given bcrypt
// cost. It fails when cost is outside bcrypt's accepted range.
func NewCredentials(users UserStore, cost int, logger zerolog.Logger) (*Credentials, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Credentials{
		users:     users,
		cost:      cost,
		validate:  validation.New(),
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register validates the input, hashes the password and stores the identity.
// A taken email yields domain.ErrDuplicate.
func (c *Credentials) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := c.validate.Struct(in); err != nil {
		return domain.User{}, err
	}
	if isAllDigits(in.Password) {
		return domain.User{}, domain.NewValidationError("password", "this password is entirely numeric")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), c.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := c.users.Create(ctx, repository.UserCreateParams{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: string(hash),
	})
	if err != nil {
		return domain.User{}, err
	}
	c.logger.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Verify checks an email/password pair. Unknown emails and wrong passwords
// both yield domain.ErrInvalidCredentials.
func (c *Credentials) Verify(ctx context.Context, email, password string) (domain.User, error) {
	user, err := c.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(password))
			metrics.LoginsTotal.WithLabelValues("invalid").Inc()
			return domain.User{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.LoginsTotal.WithLabelValues("inactive").Inc()
		return domain.User{}, domain.ErrInactiveAccount
	}

	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return user, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
