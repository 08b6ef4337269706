package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardstack/scheduled-payment-crank/pkg/config"
	"github.com/cardstack/scheduled-payment-crank/pkg/engine"
	"github.com/cardstack/scheduled-payment-crank/pkg/hasher"
	"github.com/cardstack/scheduled-payment-crank/pkg/hubclient"
)

// EstimateOptions holds flags for the estimate command.
type EstimateOptions struct {
	*RootOptions
	IntentsFile string
	GenesisFile string
	At          int64
}

// NewEstimateCommand creates the estimate command.
func NewEstimateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EstimateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "estimate <intents.json>",
		Short: "Estimate the execution gas of each intent",
		Long: `Estimate the gas an execution of each intent would need.

Every execution is tried on a module built from the genesis file and rolled
back. The intents do not need to be scheduled. An intent that could not
execute at the given time reports the reason instead of an estimate.

Examples:
  # Estimate against genesis.json at the current time
  spcrank estimate ./intents.json

  # Estimate at a given unix timestamp
  spcrank estimate ./intents.json --genesis ./testdata/genesis.json --at 1700000000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.IntentsFile = args[0]
			return runEstimate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.GenesisFile, "genesis", "g", config.DefaultGenesisFile, "Genesis file describing the avatar's tokens")
	cmd.Flags().Int64Var(&opts.At, "at", 0, "Unix timestamp to estimate at (default now)")

	return cmd
}

func runEstimate(cmd *cobra.Command, opts *EstimateOptions) error {
	ctx := cmd.Context()

	intents, err := hubclient.ReadIntentsFile(opts.IntentsFile)
	if err != nil {
		return err
	}

	chain, err := loadChain(opts.GenesisFile)
	if err != nil {
		return err
	}
	deps, err := resolveCollaborators(&config.Config{}, chain, nil)
	if err != nil {
		return err
	}

	moduleOpts := moduleOptions(&config.Config{}, deps, deps.rates, nil)
	moduleOpts.Logger = opts.newLogger()
	module, err := engine.New(ctx, moduleOpts)
	if err != nil {
		return err
	}

	at := opts.At
	if at <= 0 {
		at = time.Now().Unix()
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

		gasUsed, err := module.EstimateExecutionGas(ctx, intent, uint64(at))
		if err != nil {
			fmt.Fprintf(out, "%s\terror\t%v\n", hash.Hex(), err)
			continue
		}
		fmt.Fprintf(out, "%s\t%d\n", hash.Hex(), gasUsed)
	}
	return nil
}
