// Package cli implements the octofit command tree.
package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"example.com/octofit/internal/config"
	"example.com/octofit/internal/logging"
)

// ErrIntegrityFaults is returned by reconcile when any profile diverged.
var ErrIntegrityFaults = errors.New("integrity faults found")

type app struct {
	cfg        config.Config
	configFile string
	out        io.Writer
}

// NewRootCommand builds the command tree. Output of informational commands
// goes to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "octofit",
		Short:         "Activity scoring and ranking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "TOML config file (overrides CONFIG_FILE)")
	root.SetOut(out)

	root.AddCommand(
		newServeCommand(a),
		newConsumeCommand(a),
		newDLQCommand(a),
		newReconcileCommand(a),
		newMigrateCommand(a),
		newTokenCommand(a),
	)
	return root
}

func (a *app) load() error {
	if a.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", a.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
