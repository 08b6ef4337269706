package simchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// rateBase is the scale of simulated exchange rates
var rateBase = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Config is a fixed module config
type Config struct {
	Crank    common.Address
	Receiver common.Address
	Days     uint64
}

func (c *Config) CrankAddress(context.Context) (common.Address, error) {
	return c.Crank, nil
}

func (c *Config) FeeReceiver(context.Context) (common.Address, error) {
	return c.Receiver, nil
}

func (c *Config) ValidForDays(context.Context) (uint64, error) {
	return c.Days, nil
}

// Exchange serves USD rates scaled by 1e18
type Exchange struct {
	mu    sync.RWMutex
	rates map[common.Address]*big.Int
}

// NewExchange creates an exchange without rates
func NewExchange() *Exchange {
	return &Exchange{rates: make(map[common.Address]*big.Int)}
}

// SetRate sets the 1e18 scaled USD price of one whole token
func (e *Exchange) SetRate(token common.Address, rate *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rates[token] = new(big.Int).Set(rate)
}

func (e *Exchange) ExchangeRateOf(_ context.Context, token common.Address) (*big.Int, *big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rate, ok := e.rates[token]
	if !ok {
		return nil, nil, fmt.Errorf("no exchange rate for %s", token.Hex())
	}
	return new(big.Int).Set(rate), new(big.Int).Set(rateBase), nil
}
