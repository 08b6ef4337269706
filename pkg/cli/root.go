// Package cli implements the crank command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
)

// Version is set at build time with -ldflags "-X .../pkg/cli.Version=..."
var Version = "dev"

// RootOptions holds global flags available to all commands.
type RootOptions struct {
	Verbose bool
	NoColor bool
}

// newLogger builds the logger used by commands that do not read the environment
func (o *RootOptions) newLogger() logger.Logger {
	level := logger.InfoLevel
	if o.Verbose {
		level = logger.DebugLevel
	}
	return logger.NewStdLogger(!o.NoColor, level)
}

// NewRootCommand creates the root cobra command with all subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "spcrank",
		Short: "Scheduled payment module crank",
		Long: `spcrank executes scheduled payments on behalf of an avatar.

The avatar schedules payment hashes with the module. The crank watches the
intents behind those hashes and executes each one inside its validity window:
one-time payments on their pay-at day, recurring payments once per month.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "Disable colored log prefixes")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewHashCommand(opts))
	cmd.AddCommand(NewEstimateCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}
