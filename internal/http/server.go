package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Clark-Hu/movie-ratings/internal/auth"
	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/service"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CredentialStore registers and authenticates accounts.
type CredentialStore interface {
	Register(ctx context.Context, in auth.RegisterInput) (domain.User, error)
	Verify(ctx context.Context, email, password string) (domain.User, error)
}

// Catalog is the movie use-case surface the handlers call.
type Catalog interface {
	Create(ctx context.Context, owner domain.Identity, in service.CreateMovieInput) (domain.Movie, error)
	Delete(ctx context.Context, requester domain.Identity, movieID string) error
	Get(ctx context.Context, movieID string) (domain.MovieDetail, error)
	List(ctx context.Context, filters repository.MovieListFilters) (repository.Page[domain.Movie], error)
}

// Ledger is the rating use-case surface the handlers call.
type Ledger interface {
	Submit(ctx context.Context, user domain.Identity, movieID string, in service.SubmitRatingInput) (repository.RatingSubmitResult, error)
	Remove(ctx context.Context, user domain.Identity, movieID string) (domain.MovieStats, bool, error)
	ListForMovie(ctx context.Context, movieID string, req repository.PageRequest) (service.MovieRatings, error)
	ListForUser(ctx context.Context, user domain.Identity, req repository.PageRequest) (repository.Page[domain.Rating], error)
	Mine(ctx context.Context, user domain.Identity, movieID string) (domain.Rating, error)
}

// Dependencies bundles the collaborators the server routes to.
type Dependencies struct {
	Health        HealthChecker
	Authenticator auth.Authenticator
	Credentials   CredentialStore
	Catalog       Catalog
	Ledger        Ledger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg         config.Config
	health      HealthChecker
	tokens      auth.Authenticator
	credentials CredentialStore
	catalog     Catalog
	ledger      Ledger
	logger      zerolog.Logger
	router      chi.Router
	httpSrv     *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Dependencies, logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(observeDuration)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		cfg:         cfg,
		health:      deps.Health,
		tokens:      deps.Authenticator,
		credentials: deps.Credentials,
		catalog:     deps.Catalog,
		ledger:      deps.Ledger,
		logger:      logger,
		router:      r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/token", s.handleObtainToken)
		r.Post("/token/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	s.router.Route("/movies", func(r chi.Router) {
		r.Get("/", s.handleListMovies)
		r.With(s.requireAuth).Post("/", s.handleCreateMovie)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetMovie)
			r.With(s.requireAuth).Delete("/", s.handleDeleteMovie)
			r.Get("/ratings", s.handleListMovieRatings)
			r.With(s.requireAuth).Post("/ratings", s.handleSubmitRating)
			r.With(s.requireAuth).Delete("/ratings", s.handleRemoveRating)
			r.With(s.requireAuth).Get("/ratings/me", s.handleGetMyRating)
		})
	})

	s.router.With(s.requireAuth).Get("/user/ratings", s.handleListUserRatings)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.HealthCheck(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
