package simchain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/models"
	"github.com/cardstack/scheduled-payment-crank/pkg/period"
)

// GenesisToken is a token entry of a genesis file
type GenesisToken struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	// USDRate is the human USD price of one whole token, e.g. "23401"
	USDRate  string            `json:"usd_rate"`
	Balances map[string]string `json:"balances"`
}

// Genesis describes the initial simulated world
type Genesis struct {
	Avatar       string         `json:"avatar"`
	Crank        string         `json:"crank"`
	FeeReceiver  string         `json:"fee_receiver"`
	ValidForDays uint64         `json:"valid_for_days"`
	Tokens       []GenesisToken `json:"tokens"`
}

// Chain bundles the simulated collaborators built from a genesis
type Chain struct {
	World    *World
	Avatar   *Avatar
	Config   *Config
	Exchange *Exchange
}

// LoadGenesis reads a genesis file
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}
	return &g, nil
}

// Build creates the world described by g
func (g *Genesis) Build() (*Chain, error) {
	for name, addr := range map[string]string{"avatar": g.Avatar, "crank": g.Crank, "fee_receiver": g.FeeReceiver} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid %s address %q", name, addr)
		}
	}
	if g.ValidForDays > period.MaxValidForDays {
		return nil, fmt.Errorf("valid_for_days %d exceeds %d", g.ValidForDays, period.MaxValidForDays)
	}

	world := NewWorld()
	exchange := NewExchange()
	for _, t := range g.Tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("invalid token address %q", t.Address)
		}
		token := common.HexToAddress(t.Address)
		world.AddToken(Token{Address: token, Symbol: t.Symbol, Decimals: t.Decimals})

		if t.USDRate != "" {
			rate, err := models.ParseFixedPoint(t.USDRate)
			if err != nil {
				return nil, fmt.Errorf("token %s usd_rate: %w", t.Symbol, err)
			}
			exchange.SetRate(token, rate)
		}

		for holder, raw := range t.Balances {
			if !common.IsHexAddress(holder) {
				return nil, fmt.Errorf("token %s: invalid holder %q", t.Symbol, holder)
			}
			amount, ok := new(big.Int).SetString(raw, 10)
			if !ok || amount.Sign() < 0 {
				return nil, fmt.Errorf("token %s: invalid balance %q", t.Symbol, raw)
			}
			if err := world.Mint(token, common.HexToAddress(holder), amount); err != nil {
				return nil, err
			}
		}
	}

	return &Chain{
		World:  world,
		Avatar: NewAvatar(world, common.HexToAddress(g.Avatar)),
		Config: &Config{
			Crank:    common.HexToAddress(g.Crank),
			Receiver: common.HexToAddress(g.FeeReceiver),
			Days:     g.ValidForDays,
		},
		Exchange: exchange,
	}, nil
}
