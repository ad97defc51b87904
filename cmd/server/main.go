package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-ratings/db"
	"github.com/Clark-Hu/movie-ratings/internal/auth"
	"github.com/Clark-Hu/movie-ratings/internal/config"
	httpserver "github.com/Clark-Hu/movie-ratings/internal/http"
	"github.com/Clark-Hu/movie-ratings/internal/logger"
	"github.com/Clark-Hu/movie-ratings/internal/metrics"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/service"
	"github.com/Clark-Hu/movie-ratings/internal/store"
)

const serviceName = "movie-ratings"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		bootLog := logger.New(logger.Options{Service: serviceName})
		bootLog.Fatal().Err(err).Msg("server exited")
	}
}

// run loads configuration, wires the application and serves until ctx ends.
func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: serviceName,
	})

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if !cfg.UsesRedisBlacklist() {
		go purgeBlacklist(ctx, a.repo.Blacklist, cfg.Auth.BlacklistPurgeInterval, log)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := a.server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	var serveErr error
	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve http: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("server stopped")
	return serveErr
}

// app is the wired process: store, repositories, optional redis and the HTTP
// server.
type app struct {
	store  *store.Store
	redis  *redis.Client
	repo   *repository.Repository
	server *httpserver.Server
}

func newApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 log,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &app{store: st, repo: repository.New(st)}

	if cfg.AutoMigrate {
		if err := st.Migrate(dbCtx, db.Migrations); err != nil {
			a.close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	var blacklist auth.Blacklist = a.repo.Blacklist
	if cfg.UsesRedisBlacklist() {
		client, err := auth.ConnectRedis(dbCtx, cfg.Redis)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		blacklist = auth.NewRedisBlacklist(client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis token blacklist")
	}

	creds, err := auth.NewCredentials(a.repo.Users, cfg.Auth.BcryptCost, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init credentials: %w", err)
	}

	a.server = httpserver.New(cfg, httpserver.Dependencies{
		Health:        st,
		Authenticator: auth.NewTokenService(cfg.Auth, blacklist),
		Credentials:   creds,
		Catalog:       service.NewCatalog(a.repo.Movies, a.repo.Ratings, log),
		Ledger:        service.NewLedger(a.repo.Ratings, a.repo.Movies, log),
	}, log)
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.store.Close()
}

// purgeBlacklist drops blacklist rows whose tokens have expired anyway.
func purgeBlacklist(ctx context.Context, bl *repository.BlacklistRepository, every time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := bl.PurgeExpired(ctx, now)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn().Err(err).Msg("purge token blacklist")
				}
				continue
			}
			metrics.BlacklistPurgedTotal.Add(float64(n))
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("purged expired blacklist entries")
			}
		}
	}
}
