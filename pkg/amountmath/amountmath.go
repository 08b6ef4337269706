// Package amountmath implements the fixed point fee and conversion arithmetic
// of scheduled payments on 256-bit unsigned integers.
package amountmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrArithmeticOverflow is returned when a value does not fit in 256 bits
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrDivisionByZero is returned when an exchange rate or base is zero
	ErrDivisionByZero = errors.New("division by zero")
)

// FixedPointBase is the 1e18 base of USD amounts and fee percentages
var FixedPointBase = uint256.NewInt(1_000_000_000_000_000_000)

// Convert turns a 1e18 fixed point USD amount into token units.
// rate is the token's USD price scaled by rateBase and tokenBase is
// the token's decimal base (10^decimals).
//
//	result = amountUSD * rateBase * tokenBase / (1e18 * rate)
func Convert(amountUSD, rate, rateBase, tokenBase *big.Int) (*big.Int, error) {
	usd, err := toUint(amountUSD)
	if err != nil {
		return nil, err
	}
	r, err := toUint(rate)
	if err != nil {
		return nil, err
	}
	rb, err := toUint(rateBase)
	if err != nil {
		return nil, err
	}
	tb, err := toUint(tokenBase)
	if err != nil {
		return nil, err
	}
	if r.IsZero() || rb.IsZero() {
		return nil, ErrDivisionByZero
	}

	num, err := mul(usd, tb)
	if err != nil {
		return nil, err
	}
	den := r
	// the common 1e18 factor cancels exactly, so skip it to keep headroom
	if !rb.Eq(FixedPointBase) {
		if num, err = mul(num, rb); err != nil {
			return nil, err
		}
		if den, err = mul(r, FixedPointBase); err != nil {
			return nil, err
		}
	}
	return new(uint256.Int).Div(num, den).ToBig(), nil
}

// PercentageFee returns amount * percentage / 1e18, rounded down
func PercentageFee(amount, percentage *big.Int) (*big.Int, error) {
	a, err := toUint(amount)
	if err != nil {
		return nil, err
	}
	p, err := toUint(percentage)
	if err != nil {
		return nil, err
	}
	prod, err := mul(a, p)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(prod, FixedPointBase).ToBig(), nil
}

// GasReimbursement returns executionGas * gasPrice
func GasReimbursement(executionGas uint64, gasPrice *big.Int) (*big.Int, error) {
	p, err := toUint(gasPrice)
	if err != nil {
		return nil, err
	}
	prod, err := mul(uint256.NewInt(executionGas), p)
	if err != nil {
		return nil, err
	}
	return prod.ToBig(), nil
}

// Add returns the sum of the given amounts
func Add(values ...*big.Int) (*big.Int, error) {
	sum := new(uint256.Int)
	for _, v := range values {
		u, err := toUint(v)
		if err != nil {
			return nil, err
		}
		if _, overflow := sum.AddOverflow(sum, u); overflow {
			return nil, ErrArithmeticOverflow
		}
	}
	return sum.ToBig(), nil
}

// DecimalsBase returns 10^decimals
func DecimalsBase(decimals uint8) (*big.Int, error) {
	// 10^78 no longer fits in 256 bits
	if decimals > 77 {
		return nil, ErrArithmeticOverflow
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals))).ToBig(), nil
}

func toUint(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrArithmeticOverflow
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return u, nil
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}
