package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/common/middleware"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
	"github.com/telhawk-systems/cardvault/vault/internal/rollback"
)

// NewRollbackCommand creates the rollback command group. Each subcommand
// operates directly on the configured store.
func NewRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Inspect and drive the security rollback state machine",
	}

	var (
		reason  string
		restart bool
	)

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current rollback state",
		Args:  cobra.NoArgs,
		RunE: withMachine(rootOpts, func(ctx context.Context, out *printer, m *rollback.Machine) error {
			return out.status(m.Status(ctx))
		}),
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "List recent rollback and restore events, newest first",
		Args:  cobra.NoArgs,
		RunE: withMachine(rootOpts, func(ctx context.Context, out *printer, m *rollback.Machine) error {
			return out.history(m.History(ctx))
		}),
	}

	trigger := &cobra.Command{
		Use:   "trigger",
		Short: "Degrade the vault to compatibility mode",
		Args:  cobra.NoArgs,
		RunE: withMachine(rootOpts, func(ctx context.Context, out *printer, m *rollback.Machine) error {
			res := m.TriggerRollback(ctx, reason, map[string]any{"userInitiated": true, "source": "cli"})
			if err := out.outcome(res, "Rollback", res.Success, res.Event, res.Error); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("rollback failed: %s", res.Error)
			}
			return nil
		}),
	}
	trigger.Flags().StringVar(&reason, "reason", models.ReasonManual, "reason recorded on the rollback event")

	emergency := &cobra.Command{
		Use:   "emergency",
		Short: "Run an emergency rollback",
		Long: `Run an emergency rollback. A running server restarts itself after an
emergency triggered through its API; from the CLI the restart is left to the
operator.`,
		Args: cobra.NoArgs,
		RunE: withMachine(rootOpts, func(ctx context.Context, out *printer, m *rollback.Machine) error {
			res := m.TriggerEmergencyRollback(ctx)
			if err := out.outcome(res, "Emergency rollback", res.Success, res.Event, res.Error); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("emergency rollback failed: %s", res.Error)
			}
			return nil
		}),
	}

	restore := &cobra.Command{
		Use:   "restore",
		Short: "Re-enable security features after a rollback",
		Args:  cobra.NoArgs,
		RunE: withMachine(rootOpts, func(ctx context.Context, out *printer, m *rollback.Machine) error {
			res := m.RestoreFromRollback(ctx, rollback.RestoreOptions{Restart: restart})
			if err := out.outcome(res, "Restore", res.Success, res.Event, res.Error); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("restore failed: %s", res.Error)
			}
			return nil
		}),
	}
	restore.Flags().BoolVar(&restart, "restart", false, "request a restart once protections are restored")

	cmd.AddCommand(status, history, trigger, emergency, restore)
	return cmd
}

type machineFunc func(ctx context.Context, out *printer, m *rollback.Machine) error

func withMachine(rootOpts *RootOptions, fn machineFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		out, err := newPrinter(cmd.OutOrStdout(), rootOpts.Output)
		if err != nil {
			return err
		}
		cfg, err := rootOpts.loadConfig()
		if err != nil {
			return err
		}
		// Operational logs go to stderr so stdout stays machine-readable.
		logger := logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), "text").
			With(logging.Service("vault-cli"))

		ctx := middleware.WithSource(cmd.Context(), "cli")
		app, err := NewApp(ctx, cfg, logger, AppOptions{Store: rootOpts.store})
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(ctx, out, app.Machine)
	}
}
