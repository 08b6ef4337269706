package models

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// maxUint256 is the largest value an on-chain uint256 field can carry
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ErrInvalidIntent is returned when a payment intent is malformed
var ErrInvalidIntent = errors.New("invalid payment intent")

// Fee describes what the fee receiver collects on each execution
type Fee struct {
	// FixedUSD is a USD amount in 1e18 fixed point, converted to the gas token at execution time
	FixedUSD *big.Int
	// Percentage is a fraction of the amount in 1e18 fixed point, taken in the payment token
	Percentage *big.Int
}

// PaymentIntent holds every field that makes up a scheduled payment.
// Only its hash is ever persisted by the ledger.
type PaymentIntent struct {
	Token        common.Address
	Amount       *big.Int
	Payee        common.Address
	Fee          Fee
	ExecutionGas uint64
	MaxGasPrice  *big.Int
	GasToken     common.Address
	Salt         string

	// one-time payments set PayAt, recurring payments set RecursDayOfMonth and Until
	PayAt            uint64
	RecursDayOfMonth uint8
	Until            uint64
}

// IsRecurring reports whether the intent describes a monthly payment
func (p *PaymentIntent) IsRecurring() bool {
	return p.PayAt == 0
}

// Validate checks the intent is well formed
func (p *PaymentIntent) Validate() error {
	if p.Token == (common.Address{}) {
		return fmt.Errorf("%w: token is the zero address", ErrInvalidIntent)
	}
	if p.Payee == (common.Address{}) {
		return fmt.Errorf("%w: payee is the zero address", ErrInvalidIntent)
	}
	if p.GasToken == (common.Address{}) {
		return fmt.Errorf("%w: gas token is the zero address", ErrInvalidIntent)
	}

	amounts := []struct {
		name string
		v    *big.Int
	}{
		{"amount", p.Amount},
		{"fee fixed usd", p.Fee.FixedUSD},
		{"fee percentage", p.Fee.Percentage},
		{"max gas price", p.MaxGasPrice},
	}
	for _, a := range amounts {
		name, v := a.name, a.v
		if v == nil {
			return fmt.Errorf("%w: %s is missing", ErrInvalidIntent, name)
		}
		if v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
			return fmt.Errorf("%w: %s out of uint256 range", ErrInvalidIntent, name)
		}
	}

	if p.IsRecurring() {
		if p.RecursDayOfMonth < 1 || p.RecursDayOfMonth > 31 {
			return fmt.Errorf("%w: recurs day of month %d not in [1,31]", ErrInvalidIntent, p.RecursDayOfMonth)
		}
		if p.Until == 0 {
			return fmt.Errorf("%w: recurring payment needs an until timestamp", ErrInvalidIntent)
		}
		return nil
	}

	if p.RecursDayOfMonth != 0 || p.Until != 0 {
		return fmt.Errorf("%w: one-time payment cannot set recurrence fields", ErrInvalidIntent)
	}
	return nil
}

// Clone returns a deep copy of the intent
func (p *PaymentIntent) Clone() *PaymentIntent {
	c := *p
	c.Amount = cloneInt(p.Amount)
	c.MaxGasPrice = cloneInt(p.MaxGasPrice)
	c.Fee = Fee{FixedUSD: cloneInt(p.Fee.FixedUSD), Percentage: cloneInt(p.Fee.Percentage)}
	return &c
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
