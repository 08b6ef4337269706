package testutil

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"

	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

// Constants for testing
const (
	DefaultTestTimeout = 5 * time.Second
)

// GenerateAddress creates a random address for testing
func GenerateAddress() common.Address {
	privateKey, _ := crypto.GenerateKey()
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// CreateBigInt parses a string into a big.Int
func CreateBigInt(value string) *big.Int {
	result := new(big.Int)
	result.SetString(value, 10)
	return result
}

// AssertBigIntEqual compares two big.Int values for equality in tests
func AssertBigIntEqual(t *testing.T, expected, actual *big.Int, msgAndArgs ...interface{}) {
	if expected == nil && actual == nil {
		return
	}

	if (expected == nil && actual != nil) || (expected != nil && actual == nil) {
		assert.Fail(t, "Values not equal", msgAndArgs...)
		return
	}

	assert.Equal(t, 0, expected.Cmp(actual), msgAndArgs...)
}

// SetupTestWithTimeout creates a test with a timeout
func SetupTestWithTimeout(t *testing.T) (func(), context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)

	cleanup := func() {
		cancel()
	}

	return cleanup, ctx, cancel
}

// Unix returns the unix timestamp of a UTC date and time
func Unix(year int, month time.Month, day, hour, min, sec int) uint64 {
	return uint64(time.Date(year, month, day, hour, min, sec, 0, time.UTC).Unix())
}

// OneTimeIntent returns a one-time payment of 1e12 token units with a 25 USD and 10% fee
func OneTimeIntent(token, payee, gasToken common.Address, payAt uint64) *models.PaymentIntent {
	return &models.PaymentIntent{
		Token:  token,
		Amount: CreateBigInt("1000000000000"),
		Payee:  payee,
		Fee: models.Fee{
			FixedUSD:   CreateBigInt("25000000000000000000"),
			Percentage: CreateBigInt("100000000000000000"),
		},
		ExecutionGas: 200000,
		MaxGasPrice:  CreateBigInt("10000000000"),
		GasToken:     gasToken,
		Salt:         "salt-" + payee.Hex()[2:10],
		PayAt:        payAt,
	}
}

// RecurringIntent returns a monthly payment with the same amounts as OneTimeIntent
func RecurringIntent(token, payee, gasToken common.Address, day uint8, until uint64) *models.PaymentIntent {
	intent := OneTimeIntent(token, payee, gasToken, 0)
	intent.RecursDayOfMonth = day
	intent.Until = until
	return intent
}
