// Package cli implements the vault command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/cardvault/common/config"
	"github.com/telhawk-systems/cardvault/vault/internal/kvstore"
)

// Version is stamped at build time.
var Version = "0.1.0"

// ErrRestart asks main to exit with ExitRestart so a supervisor restarts the
// process.
var ErrRestart = errors.New("restart requested")

// ExitRestart is the exit code used for ErrRestart (EX_TEMPFAIL).
const ExitRestart = 75

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Output     string

	// store replaces the configured backend in tests.
	store kvstore.Store
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// NewRootCommand creates the root command for the vault CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Card vault security service",
		Long: `vault runs the card vault admin service and manages its security posture.

The serve command starts the admin API. The rollback commands inspect and
drive the rollback state machine against the configured store.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default: $VAULT_CONFIG_DIR/config.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", outputTable, "output format: table, json, yaml")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRollbackCommand(opts))
	cmd.AddCommand(NewHashPasswordCommand())
	cmd.AddCommand(NewSanitizeCommand())

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
