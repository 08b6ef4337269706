package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/chainclient"
	"github.com/cardstack/scheduled-payment-crank/pkg/config"
	"github.com/cardstack/scheduled-payment-crank/pkg/engine"
	"github.com/cardstack/scheduled-payment-crank/pkg/exchange"
	"github.com/cardstack/scheduled-payment-crank/pkg/ledger"
	"github.com/cardstack/scheduled-payment-crank/pkg/simchain"
)

// collaborators are the module dependencies resolved from the configuration
type collaborators struct {
	chain  *simchain.Chain
	client *chainclient.Client
	config engine.ConfigSource
	rates  engine.RateSource
}

// resolveCollaborators builds the simulated world from the genesis file and
// replaces the config and rate sources with contract readers when the
// configuration names contracts.
func resolveCollaborators(cfg *config.Config, chain *simchain.Chain, newClient func() (*chainclient.Client, error)) (*collaborators, error) {
	c := &collaborators{chain: chain}

	if cfg.UsesChain() {
		client, err := newClient()
		if err != nil {
			return nil, err
		}
		c.client = client
	}

	zero := common.Address{}

	// Config: contract reader, otherwise the genesis values with env overrides
	if cfg.ConfigAddress != zero {
		c.config = c.client.Config(cfg.ConfigAddress)
	} else {
		static := *chain.Config
		if cfg.CrankAddress != zero {
			static.Crank = cfg.CrankAddress
		}
		if cfg.FeeReceiver != zero {
			static.Receiver = cfg.FeeReceiver
		}
		if cfg.ValidForDays != 0 {
			static.Days = cfg.ValidForDays
		}
		if static.Days == 0 {
			static.Days = config.DefaultValidForDays
		}
		c.config = &static
	}

	// Rates: Exchange contract, Uniswap TWAP, otherwise genesis rates
	switch {
	case cfg.ExchangeAddress != zero:
		c.rates = c.client.Exchange(cfg.ExchangeAddress)
	case cfg.UniswapFactory != zero:
		c.rates = &exchange.TWAP{
			Pools:      c.client.Pools(cfg.UniswapFactory),
			Tokens:     c.client,
			USDToken:   cfg.USDToken,
			Fee:        exchange.DefaultPoolFee,
			SecondsAgo: exchange.DefaultSecondsAgo,
		}
	default:
		c.rates = chain.Exchange
	}

	return c, nil
}

// tokenAddresses lists the tokens of the simulated world
func tokenAddresses(chain *simchain.Chain) func() []common.Address {
	return func() []common.Address {
		tokens := chain.World.Tokens()
		out := make([]common.Address, 0, len(tokens))
		for _, t := range tokens {
			out = append(out, t.Address)
		}
		return out
	}
}

// moduleOptions fills the module wiring shared by serve and estimate
func moduleOptions(cfg *config.Config, c *collaborators, rates engine.RateSource, store ledger.Store) engine.Options {
	avatar := c.chain.Avatar
	owner := cfg.Owner
	if owner == (common.Address{}) {
		owner = avatar.Address()
	}
	target := cfg.Target
	if target == (common.Address{}) {
		target = avatar.Address()
	}

	return engine.Options{
		Owner:         owner,
		Target:        target,
		ConfigAddress: cfg.ConfigAddress,
		Config:        c.config,
		Rates:         rates,
		Tokens:        c.chain.World,
		Avatar:        avatar,
		Store:         store,
	}
}

// loadChain reads and builds the genesis file
func loadChain(path string) (*simchain.Chain, error) {
	genesis, err := simchain.LoadGenesis(path)
	if err != nil {
		return nil, err
	}
	chain, err := genesis.Build()
	if err != nil {
		return nil, fmt.Errorf("invalid genesis %s: %w", path, err)
	}
	return chain, nil
}
