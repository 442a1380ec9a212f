package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/cardvault/common/config"
	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/vault/internal/handlers"
	"github.com/telhawk-systems/cardvault/vault/internal/rollback"
	"github.com/telhawk-systems/cardvault/vault/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the vault admin API",
		Long: `Start the admin API, the session sweeper and the fault watcher.

A restart requested by an emergency rollback or a restore exits with code 75
so the process supervisor can start a clean instance.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("vault"))
	logging.SetDefault(logger)

	slog.Info("Starting vault",
		slog.String("version", Version),
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("log_level", cfg.Logging.Level))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var restart atomic.Bool
	restarter := rollback.RestarterFunc(func(reason string) {
		slog.Warn("Restarting vault", logging.Reason(reason))
		restart.Store(true)
		cancel()
	})

	app, err := NewApp(ctx, cfg, logger, AppOptions{Restarter: restarter})
	if err != nil {
		return err
	}
	defer app.Close()

	router := server.NewRouter(server.Handlers{
		Health:   handlers.NewHealthHandler(Version, app.Machine, app.Broker),
		Sessions: handlers.NewSessionHandler(app.Gate, cfg.Security.AdminUser, cfg.Security.AdminPasswordHash, logger.Logger),
		Rollback: handlers.NewRollbackHandler(app.Machine),
	}, app.Gate, app.Bus, server.AdminCORS(cfg.Server.CORSOrigins))
	srv := server.New(cfg.Server, router)

	if cfg.Security.AdminPasswordHash == "" {
		slog.Warn("No admin password hash configured; admin login is disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		app.Gate.RunSweeper(gctx, cfg.Security.SessionSweepInterval)
		return nil
	})
	g.Go(func() error { return app.Machine.Watch(gctx, app.Bus) })

	err = g.Wait()
	if restart.Load() {
		return ErrRestart
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Vault stopped")
	return nil
}
