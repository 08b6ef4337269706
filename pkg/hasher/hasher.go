// Package hasher computes the spHash that identifies a scheduled payment.
//
// Encoding (version 2, the only one in use):
//
//	keccak256(abi.encode(
//	    bytes32 domain,          // keccak256("ScheduledPaymentModule.spHash.v2")
//	    address token, uint256 amount, address payee,
//	    uint256 feeFixedUSD, uint256 feePercentage,
//	    uint256 executionGas, uint256 maxGasPrice, address gasToken,
//	    string  salt,
//	    uint8   kind,            // 1 one-time, 2 recurring
//	    uint256 payAt, uint256 recursDayOfMonth, uint256 until))
//
// Fields that do not apply to the payment kind are encoded as zero.
package hasher

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

const (
	kindOneTime   uint8 = 1
	kindRecurring uint8 = 2
)

// Domain separates spHash preimages from any other abi encoded data
var Domain = crypto.Keccak256Hash([]byte("ScheduledPaymentModule.spHash.v2"))

var arguments abi.Arguments

func init() {
	types := []string{
		"bytes32",
		"address", "uint256", "address",
		"uint256", "uint256",
		"uint256", "uint256", "address",
		"string",
		"uint8",
		"uint256", "uint256", "uint256",
	}
	for _, name := range types {
		t, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(fmt.Sprintf("hasher: invalid abi type %s: %v", name, err))
		}
		arguments = append(arguments, abi.Argument{Type: t})
	}
}

// Encode returns the canonical preimage of the intent's hash
func Encode(intent *models.PaymentIntent) ([]byte, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	kind := kindOneTime
	payAt := new(big.Int).SetUint64(intent.PayAt)
	recursDay := new(big.Int)
	until := new(big.Int)
	if intent.IsRecurring() {
		kind = kindRecurring
		payAt = new(big.Int)
		recursDay.SetUint64(uint64(intent.RecursDayOfMonth))
		until.SetUint64(intent.Until)
	}

	return arguments.Pack(
		[32]byte(Domain),
		intent.Token,
		intent.Amount,
		intent.Payee,
		intent.Fee.FixedUSD,
		intent.Fee.Percentage,
		new(big.Int).SetUint64(intent.ExecutionGas),
		intent.MaxGasPrice,
		intent.GasToken,
		intent.Salt,
		kind,
		payAt,
		recursDay,
		until,
	)
}

// Hash returns the spHash of the intent
func Hash(intent *models.PaymentIntent) (common.Hash, error) {
	encoded, err := Encode(intent)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode payment intent: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// MustHash is like Hash but panics on a malformed intent
func MustHash(intent *models.PaymentIntent) common.Hash {
	h, err := Hash(intent)
	if err != nil {
		panic(err)
	}
	return h
}
