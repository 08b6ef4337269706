package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/amountmath"
	"github.com/cardstack/scheduled-payment-crank/pkg/gas"
	"github.com/cardstack/scheduled-payment-crank/pkg/ledger"
	"github.com/cardstack/scheduled-payment-crank/pkg/period"
)

// Error taxonomy of the module. Match with errors.Is.
var (
	ErrUnauthorized       = ledger.ErrUnauthorized
	ErrUnknownHash        = ledger.ErrUnknownHash
	ErrAlreadyScheduled   = ledger.ErrAlreadyScheduled
	ErrInvalidPeriod      = period.ErrInvalidPeriod
	ErrOutOfGas           = gas.ErrOutOfGas
	ErrArithmeticOverflow = amountmath.ErrArithmeticOverflow

	// ErrPaymentExecutionFailed covers the payment transfer and both fee transfers
	ErrPaymentExecutionFailed = errors.New("payment execution failed")

	ErrInvalidSetup = errors.New("invalid module setup")
	ErrClockRewound = errors.New("clock moved backwards")
)

// PaymentError attaches the operation and payment hash to an error
type PaymentError struct {
	Op   string
	Hash common.Hash
	Err  error
}

func (e *PaymentError) Error() string {
	if e.Hash == (common.Hash{}) {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Hash.Hex(), e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// HashOf returns the payment hash carried by err, if any
func HashOf(err error) (common.Hash, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) && pe.Hash != (common.Hash{}) {
		return pe.Hash, true
	}
	return common.Hash{}, false
}

func wrap(op string, hash common.Hash, err error) error {
	if err == nil {
		return nil
	}
	return &PaymentError{Op: op, Hash: hash, Err: err}
}
