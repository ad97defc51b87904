package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/logger"
	"github.com/Clark-Hu/movie-ratings/internal/maintenance"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/store"
)

// admin is the maintenance surface the commands drive.
type admin interface {
	Audit(ctx context.Context) ([]maintenance.Drift, error)
	Repair(ctx context.Context, movieIDs ...string) ([]domain.MovieStats, error)
	SetActive(ctx context.Context, email string, active bool) (domain.User, error)
}

// opener connects to the database and returns the admin service plus a
// release func.
type opener func(ctx context.Context) (admin, func(), error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, release := newRootCmd(openStore)
	err := root.ExecuteContext(ctx)
	release()
	if err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The returned func releases whatever
// connection a subcommand opened and is safe to call when none was.
func newRootCmd(open opener) (*cobra.Command, func()) {
	var (
		svc     admin
		release = func() {}
	)

	root := &cobra.Command{
		Use:          "ratings-admin",
		Short:        "Maintenance tasks for the movie ratings database",
		SilenceUsage: true,
	}
	connect := func(cmd *cobra.Command, _ []string) error {
		s, closeFn, err := open(cmd.Context())
		if err != nil {
			return err
		}
		svc, release = s, closeFn
		return nil
	}

	audit := &cobra.Command{
		Use:     "audit",
		Short:   "Report movies whose stored stats disagree with their ratings",
		Args:    cobra.NoArgs,
		PreRunE: connect,
		RunE: func(cmd *cobra.Command, _ []string) error {
			drifted, err := svc.Audit(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range drifted {
				fmt.Fprintf(out, "%s\t%q\tstored=%d/%.4f\tactual=%d/%.4f\n",
					d.Stored.ID, d.Stored.Title, d.Stored.RatingsCount, d.Stored.RatingsAvg, d.Count, d.Avg)
			}
			fmt.Fprintf(out, "%d movie(s) drifted\n", len(drifted))
			return nil
		},
	}

	recompute := &cobra.Command{
		Use:     "recompute [movie-id...]",
		Short:   "Rebuild stats for the named movies, or all movies",
		PreRunE: connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := svc.Repair(cmd.Context(), args...)
			out := cmd.OutOrStdout()
			for _, s := range stats {
				fmt.Fprintf(out, "%s\t%d\t%.2f\n", s.ID, s.RatingsCount, s.RatingsAvg)
			}
			return err
		},
	}

	setActive := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:     use + " <email>",
			Short:   short,
			Args:    cobra.ExactArgs(1),
			PreRunE: connect,
			RunE: func(cmd *cobra.Command, args []string) error {
				user, err := svc.SetActive(cmd.Context(), args[0], active)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tactive=%t\n", user.ID, user.Email, user.IsActive)
				return nil
			},
		}
	}

	root.AddCommand(
		audit,
		recompute,
		setActive("deactivate", "Block an account from logging in", false),
		setActive("activate", "Allow a deactivated account to log in again", true),
	)
	return root, func() { release() }
}

// openStore builds the maintenance service from the same environment the
// server reads.
func openStore(ctx context.Context) (admin, func(), error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "ratings-admin",
	})

	st, err := store.New(ctx, cfg.DBURL, store.Options{
		MaxConns:               2,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 log,
	})
	if err != nil {
		return nil, nil, err
	}
	repo := repository.New(st)
	return maintenance.New(repo.Movies, repo.Ratings, repo.Users, log), st.Close, nil
}
