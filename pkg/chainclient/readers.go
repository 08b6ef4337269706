package chainclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/contracts"
	"github.com/cardstack/scheduled-payment-crank/pkg/exchange"
)

// ConfigReader reads the module Config contract
type ConfigReader struct {
	client   *Client
	Address  common.Address
	contract *contracts.ConfigCaller
}

// Config binds the Config contract at address
func (c *Client) Config(address common.Address) *ConfigReader {
	return &ConfigReader{client: c, Address: address, contract: contracts.NewConfigCaller(address, c.backend)}
}

func (r *ConfigReader) CrankAddress(ctx context.Context) (common.Address, error) {
	return r.contract.CrankAddress(r.client.callOpts(ctx))
}

func (r *ConfigReader) FeeReceiver(ctx context.Context) (common.Address, error) {
	return r.contract.FeeReceiver(r.client.callOpts(ctx))
}

func (r *ConfigReader) ValidForDays(ctx context.Context) (uint64, error) {
	days, err := r.contract.ValidForDays(r.client.callOpts(ctx))
	if err != nil {
		return 0, err
	}
	if !days.IsUint64() {
		return 0, fmt.Errorf("validForDays %s does not fit in uint64", days)
	}
	return days.Uint64(), nil
}

// ExchangeReader reads the Exchange contract
type ExchangeReader struct {
	client   *Client
	Address  common.Address
	contract *contracts.ExchangeCaller
}

// Exchange binds the Exchange contract at address
func (c *Client) Exchange(address common.Address) *ExchangeReader {
	return &ExchangeReader{client: c, Address: address, contract: contracts.NewExchangeCaller(address, c.backend)}
}

// ExchangeRateOf returns the token's USD rate and the base it is scaled by
func (r *ExchangeReader) ExchangeRateOf(ctx context.Context, token common.Address) (*big.Int, *big.Int, error) {
	rate, base, err := r.contract.ExchangeRateOf(r.client.callOpts(ctx), token)
	if err != nil {
		return nil, nil, err
	}
	if rate.Sign() <= 0 || base.Sign() <= 0 {
		return nil, nil, fmt.Errorf("exchange returned rate %s with base %s for %s", rate, base, token.Hex())
	}
	return rate, base, nil
}

// Decimals reads the decimals of token. Results are cached for the client's lifetime.
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	key := token.Hex()
	c.mu.RLock()
	d, ok := c.decimals[key]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}

	d, err := contracts.NewERC20Caller(token, c.backend).Decimals(c.callOpts(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to read decimals of %s: %v", token.Hex(), err)
	}

	c.mu.Lock()
	c.decimals[key] = d
	c.mu.Unlock()
	return d, nil
}

// BalanceOf reads the token balance of account
func (c *Client) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return contracts.NewERC20Caller(token, c.backend).BalanceOf(c.callOpts(ctx), account)
}

// PoolFinder finds the Uniswap v3 pool of a pair through the factory
type PoolFinder struct {
	client  *Client
	factory *contracts.FactoryCaller
}

// Pools binds the Uniswap v3 factory at address
func (c *Client) Pools(factory common.Address) *PoolFinder {
	return &PoolFinder{client: c, factory: contracts.NewFactoryCaller(factory, c.backend)}
}

func (f *PoolFinder) Pool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (exchange.Pool, error) {
	addr, err := f.factory.GetPool(f.client.callOpts(ctx), tokenA, tokenB, big.NewInt(int64(fee)))
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("no pool for %s/%s with fee %d", tokenA.Hex(), tokenB.Hex(), fee)
	}
	return &pool{client: f.client, contract: contracts.NewPoolCaller(addr, f.client.backend)}, nil
}

type pool struct {
	client   *Client
	contract *contracts.PoolCaller
}

func (p *pool) Observe(ctx context.Context, secondsAgos []uint32) ([]*big.Int, error) {
	return p.contract.Observe(p.client.callOpts(ctx), secondsAgos)
}
