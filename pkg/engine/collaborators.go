package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ConfigSource exposes the Config contract
type ConfigSource interface {
	CrankAddress(ctx context.Context) (common.Address, error)
	FeeReceiver(ctx context.Context) (common.Address, error)
	ValidForDays(ctx context.Context) (uint64, error)
}

// RateSource exposes the Exchange contract. rate is the token's USD
// price scaled by base.
type RateSource interface {
	ExchangeRateOf(ctx context.Context, token common.Address) (rate *big.Int, base *big.Int, err error)
}

// TokenInfo reads token metadata and balances
type TokenInfo interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
}

// Avatar executes calls on behalf of the safe. Effects made after Snapshot
// are undone by RevertToSnapshot.
type Avatar interface {
	Address() common.Address
	Execute(ctx context.Context, to common.Address, value *big.Int, data []byte) error
	Snapshot() int
	RevertToSnapshot(id int)
}
