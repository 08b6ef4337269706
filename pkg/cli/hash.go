package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cardstack/scheduled-payment-crank/pkg/hasher"
	"github.com/cardstack/scheduled-payment-crank/pkg/hubclient"
)

// HashOptions holds flags for the hash command.
type HashOptions struct {
	*RootOptions
	IntentsFile string
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash <intents.json>",
		Short: "Print the payment hash of each intent in a file",
		Long: `Print the payment hash the avatar schedules for each intent.

The file holds one intent object or an array of them, in the same form the
hub API serves.

Examples:
  spcrank hash ./intents.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.IntentsFile = args[0]
			return runHash(cmd, opts)
		},
	}

	return cmd
}

func runHash(cmd *cobra.Command, opts *HashOptions) error {
	intents, err := hubclient.ReadIntentsFile(opts.IntentsFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, wire := range intents {
		intent, err := wire.ToIntent()
		if err != nil {
			return fmt.Errorf("intent %d: %w", i, err)
		}
		hash, err := hasher.Hash(intent)
		if err != nil {
			return fmt.Errorf("intent %d: %w", i, err)
		}

		label := wire.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", hash.Hex(), label); err != nil {
			return err
		}
	}
	return nil
}
