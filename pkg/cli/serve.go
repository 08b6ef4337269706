package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cardstack/scheduled-payment-crank/pkg/chainclient"
	"github.com/cardstack/scheduled-payment-crank/pkg/circuitbreaker"
	"github.com/cardstack/scheduled-payment-crank/pkg/config"
	"github.com/cardstack/scheduled-payment-crank/pkg/crank"
	"github.com/cardstack/scheduled-payment-crank/pkg/engine"
	"github.com/cardstack/scheduled-payment-crank/pkg/events"
	"github.com/cardstack/scheduled-payment-crank/pkg/exchange"
	"github.com/cardstack/scheduled-payment-crank/pkg/health"
	"github.com/cardstack/scheduled-payment-crank/pkg/hubclient"
	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
	"github.com/cardstack/scheduled-payment-crank/pkg/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Once bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the crank",
		Long: `Run the crank until interrupted.

Configuration is read from the environment and an optional .env file.
The ledger is persisted to DB_PATH, intents come from INTENTS_API_ENDPOINT
or INTENTS_FILE and the avatar's tokens from GENESIS_FILE.

Examples:
  # Run with a .env file in the working directory
  spcrank serve

  # Execute the payments due now and exit
  spcrank serve --once`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "Poll once, execute the due payments and exit")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.LoggerConfig.Level
	if opts.Verbose {
		level = logger.DebugLevel
	}
	log := logger.NewStdLogger(cfg.LoggerConfig.Coloring && !opts.NoColor, level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.Notice("Received termination signal, shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("Failed to close store: %v", err)
		}
	}()

	chain, err := loadChain(cfg.GenesisFile)
	if err != nil {
		return err
	}

	deps, err := resolveCollaborators(cfg, chain, func() (*chainclient.Client, error) {
		return chainclient.New(ctx, cfg.RPCURL, cfg.GasMultiplier, log)
	})
	if err != nil {
		return err
	}

	rates := exchange.NewCachedSource(deps.rates, cfg.RateCacheTTL)
	refresher := exchange.NewRefresher(ctx, rates, tokenAddresses(chain), cfg.RateRefreshInterval, log)
	refresher.Start()
	defer refresher.Stop()

	moduleOpts := moduleOptions(cfg, deps, rates, st)
	moduleOpts.Sink = &events.LogSink{Logger: log}
	moduleOpts.Logger = log
	module, err := engine.New(ctx, moduleOpts)
	if err != nil {
		return err
	}

	crankAddress, err := module.CrankAddress(ctx)
	if err != nil {
		return fmt.Errorf("failed to read crank address: %w", err)
	}

	var source crank.IntentSource
	if cfg.APIEndpoint != "" {
		source = hubclient.New(cfg.APIEndpoint, log)
	} else {
		source = &hubclient.FileSource{Path: cfg.IntentsFile}
	}

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		circuitbreaker.WithLogger(log),
	)

	crankOpts := crank.Options{
		Module:          module,
		Source:          source,
		Book:            st,
		Breaker:         breaker,
		Crank:           crankAddress,
		Workers:         cfg.WorkerCount,
		MaxRetries:      cfg.MaxRetries,
		PollingInterval: cfg.PollingInterval,
		AutoSchedule:    cfg.AutoSchedule,
		Logger:          log,
	}
	if deps.client != nil {
		if _, err := deps.client.UpdateGasPrice(ctx); err != nil {
			log.Error("Failed to read initial gas price: %v", err)
		}
		gasRoutine := chainclient.NewGasPriceRoutine(deps.client, cfg.PollingInterval)
		gasRoutine.Start()
		defer gasRoutine.Stop()
		crankOpts.GasPrice = deps.client
	}

	c, err := crank.New(crankOpts)
	if err != nil {
		return err
	}

	if opts.Once {
		return printResults(cmd, c.RunOnce(ctx))
	}

	healthServer := health.NewServer(cfg.MetricsPort, c, breaker, cfg.MetricsAPIKey, log)
	go healthServer.Start(ctx)

	metricsManager := crank.NewMetricsManager(module.AvatarAddress(), chain.World, tokenAddresses(chain), crankOpts.GasPrice, log)
	go metricsManager.StartMetricsUpdater(ctx)

	log.Notice("Starting crank %s for avatar %s", crankAddress.Hex(), module.AvatarAddress().Hex())
	c.Start(ctx)
	return nil
}

// printResults writes one line per execution and fails when any failed
func printResults(cmd *cobra.Command, results []crank.Result) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "%s\tfailed\t%v\n", r.Hash.Hex(), r.Err)
			continue
		}
		fmt.Fprintf(out, "%s\texecuted\tmarker=%d final=%t gas=%d\n", r.Hash.Hex(), r.Receipt.Marker, r.Receipt.Final, r.Receipt.GasUsed)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d payments failed", failed, len(results))
	}
	return nil
}
