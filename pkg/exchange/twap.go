// Package exchange prices tokens in USD for the fixed fee conversion.
package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Default oracle settings of the mainnet deployment
const (
	DefaultPoolFee    uint32 = 3000
	DefaultSecondsAgo uint32 = 86400
)

// floatPrec is the mantissa size used for tick prices
const floatPrec = 256

var (
	ErrNoPool         = errors.New("no pool for token")
	ErrBadObservation = errors.New("unexpected pool observation")

	// RateBase is the scale of every rate returned by this package
	RateBase = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	tickBase = mustFloat("1.0001")
)

func mustFloat(s string) *big.Float {
	f, ok := new(big.Float).SetPrec(floatPrec).SetString(s)
	if !ok {
		panic("exchange: invalid float " + s)
	}
	return f
}

// Pool is the oracle of a Uniswap v3 pool
type Pool interface {
	// Observe returns the tick cumulative at each of secondsAgos
	Observe(ctx context.Context, secondsAgos []uint32) ([]*big.Int, error)
}

// PoolLocator finds the pool of a token pair
type PoolLocator interface {
	Pool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (Pool, error)
}

// DecimalsReader reads ERC20 decimals
type DecimalsReader interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// TWAP prices a token against a USD stable coin from the time weighted
// average tick of their pool.
type TWAP struct {
	Pools      PoolLocator
	Tokens     DecimalsReader
	USDToken   common.Address
	Fee        uint32
	SecondsAgo uint32
}

// ExchangeRateOf returns the USD price of one whole token scaled by RateBase
func (t *TWAP) ExchangeRateOf(ctx context.Context, token common.Address) (*big.Int, *big.Int, error) {
	if token == t.USDToken {
		return new(big.Int).Set(RateBase), new(big.Int).Set(RateBase), nil
	}
	if t.SecondsAgo == 0 {
		return nil, nil, errors.New("twap window is zero")
	}

	pool, err := t.Pools.Pool(ctx, token, t.USDToken, t.Fee)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %s: %v", ErrNoPool, token.Hex(), err)
	}
	cumulatives, err := pool.Observe(ctx, []uint32{t.SecondsAgo, 0})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to observe pool: %w", err)
	}
	if len(cumulatives) != 2 {
		return nil, nil, fmt.Errorf("%w: %d cumulatives", ErrBadObservation, len(cumulatives))
	}
	tick := MeanTick(cumulatives[0], cumulatives[1], t.SecondsAgo)

	tokenDecimals, err := t.Tokens.Decimals(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read decimals of %s: %w", token.Hex(), err)
	}
	usdDecimals, err := t.Tokens.Decimals(ctx, t.USDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read decimals of %s: %w", t.USDToken.Hex(), err)
	}

	rate := RateAtTick(tick, token, t.USDToken, tokenDecimals, usdDecimals)
	return rate, new(big.Int).Set(RateBase), nil
}

// MeanTick is the arithmetic mean tick between two cumulatives, rounded
// towards negative infinity.
func MeanTick(older, newer *big.Int, seconds uint32) int64 {
	delta := new(big.Int).Sub(newer, older)
	period := big.NewInt(int64(seconds))
	q, r := new(big.Int).QuoRem(delta, period, new(big.Int))
	if delta.Sign() < 0 && r.Sign() != 0 {
		q.Sub(q, big.NewInt(1))
	}
	return q.Int64()
}

// RateAtTick converts a pool tick into the USD price of one whole token,
// scaled by RateBase. Pool prices are token1 per token0 with tokens sorted
// by address.
func RateAtTick(tick int64, token, usdToken common.Address, tokenDecimals, usdDecimals uint8) *big.Int {
	price := TickPrice(tick)
	if bytes.Compare(token.Bytes(), usdToken.Bytes()) > 0 {
		price = new(big.Float).SetPrec(floatPrec).Quo(big.NewFloat(1).SetPrec(floatPrec), price)
	}

	scale := new(big.Float).SetPrec(floatPrec).SetInt(pow10(int64(tokenDecimals) + 18))
	price.Mul(price, scale)
	price.Quo(price, new(big.Float).SetPrec(floatPrec).SetInt(pow10(int64(usdDecimals))))

	rate, _ := price.Int(nil)
	return rate
}

// TickPrice returns 1.0001^tick
func TickPrice(tick int64) *big.Float {
	neg := tick < 0
	if neg {
		tick = -tick
	}

	result := new(big.Float).SetPrec(floatPrec).SetInt64(1)
	base := new(big.Float).SetPrec(floatPrec).Set(tickBase)
	for tick > 0 {
		if tick&1 == 1 {
			result.Mul(result, base)
		}
		base.Mul(base, base)
		tick >>= 1
	}

	if neg {
		result.Quo(new(big.Float).SetPrec(floatPrec).SetInt64(1), result)
	}
	return result
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
