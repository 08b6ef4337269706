package models

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// fixedPointDecimals is the precision of USD amounts and fee percentages
const fixedPointDecimals = 18

// IntentJSON is the wire form of a payment intent as served by the hub API and stored in intent files
type IntentJSON struct {
	ID               string `json:"id,omitempty"`
	Token            string `json:"token"`
	Amount           string `json:"amount"`
	Payee            string `json:"payee"`
	FeeFixedUSD      string `json:"fee_fixed_usd"`
	FeePercentage    string `json:"fee_percentage"`
	ExecutionGas     uint64 `json:"execution_gas"`
	MaxGasPrice      string `json:"max_gas_price"`
	GasToken         string `json:"gas_token"`
	Salt             string `json:"salt"`
	PayAt            uint64 `json:"pay_at,omitempty"`
	RecursDayOfMonth uint8  `json:"recurs_day_of_month,omitempty"`
	Until            uint64 `json:"until,omitempty"`
	Status           string `json:"status,omitempty"`
}

// ToIntent converts the wire form into a validated payment intent.
// Fee amounts are human decimals: "25" USD and "0.1" for ten percent.
func (j IntentJSON) ToIntent() (*PaymentIntent, error) {
	for name, addr := range map[string]string{"token": j.Token, "payee": j.Payee, "gas_token": j.GasToken} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: %s %q is not a valid address", ErrInvalidIntent, name, addr)
		}
	}

	amount, ok := new(big.Int).SetString(j.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidIntent, j.Amount)
	}
	maxGasPrice, ok := new(big.Int).SetString(j.MaxGasPrice, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid max_gas_price %q", ErrInvalidIntent, j.MaxGasPrice)
	}
	fixedUSD, err := ParseFixedPoint(j.FeeFixedUSD)
	if err != nil {
		return nil, fmt.Errorf("%w: fee_fixed_usd: %v", ErrInvalidIntent, err)
	}
	percentage, err := ParseFixedPoint(j.FeePercentage)
	if err != nil {
		return nil, fmt.Errorf("%w: fee_percentage: %v", ErrInvalidIntent, err)
	}

	intent := &PaymentIntent{
		Token:            common.HexToAddress(j.Token),
		Amount:           amount,
		Payee:            common.HexToAddress(j.Payee),
		Fee:              Fee{FixedUSD: fixedUSD, Percentage: percentage},
		ExecutionGas:     j.ExecutionGas,
		MaxGasPrice:      maxGasPrice,
		GasToken:         common.HexToAddress(j.GasToken),
		Salt:             j.Salt,
		PayAt:            j.PayAt,
		RecursDayOfMonth: j.RecursDayOfMonth,
		Until:            j.Until,
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return intent, nil
}

// FromIntent builds the wire form of an intent
func FromIntent(p *PaymentIntent) IntentJSON {
	return IntentJSON{
		Token:            p.Token.Hex(),
		Amount:           p.Amount.String(),
		Payee:            p.Payee.Hex(),
		FeeFixedUSD:      FormatFixedPoint(p.Fee.FixedUSD),
		FeePercentage:    FormatFixedPoint(p.Fee.Percentage),
		ExecutionGas:     p.ExecutionGas,
		MaxGasPrice:      p.MaxGasPrice.String(),
		GasToken:         p.GasToken.Hex(),
		Salt:             p.Salt,
		PayAt:            p.PayAt,
		RecursDayOfMonth: p.RecursDayOfMonth,
		Until:            p.Until,
	}
}

// ParseFixedPoint turns a human decimal into its 1e18 fixed point integer.
// An empty string is zero.
func ParseFixedPoint(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %v", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %q", s)
	}
	shifted := d.Shift(fixedPointDecimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%q has more than %d fractional digits", s, fixedPointDecimals)
	}
	return shifted.BigInt(), nil
}

// FormatFixedPoint renders a 1e18 fixed point integer as a human decimal
func FormatFixedPoint(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -fixedPointDecimals).String()
}
