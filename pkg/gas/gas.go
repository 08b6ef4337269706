// Package gas accounts for the cost of executing a scheduled payment.
package gas

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/cardstack/scheduled-payment-crank/pkg/amountmath"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

// ErrOutOfGas is returned when the declared execution gas cannot cover an execution
var ErrOutOfGas = errors.New("out of gas")

// Cost of each step of an execution
const (
	CostCallerCheck    uint64 = 2600
	CostHashIntent     uint64 = 1200
	CostLedgerLookup   uint64 = 2100
	CostConfigRead     uint64 = 2600
	CostPeriodCheck    uint64 = 500
	CostExchangeLookup uint64 = 5000
	CostDecimalsLookup uint64 = 2600
	CostTokenTransfer  uint64 = 30000
	CostMarkerWrite    uint64 = 5000
	CostLedgerRemove   uint64 = 5000
	CostEventEmit      uint64 = 1500

	// TransfersPerExecution covers the payment, the percentage fee and the gas token fee
	TransfersPerExecution = 3
)

// AdmissionCost covers caller, hash and period validation
func AdmissionCost() uint64 {
	return CostCallerCheck + CostHashIntent + CostLedgerLookup + CostConfigRead + CostPeriodCheck
}

// SettlementCost covers the transfers, the ledger update and the event.
// final selects the ledger removal instead of the marker write.
func SettlementCost(final bool) uint64 {
	ledgerUpdate := CostMarkerWrite
	if final {
		ledgerUpdate = CostLedgerRemove
	}
	return CostConfigRead + CostExchangeLookup + CostDecimalsLookup +
		TransfersPerExecution*CostTokenTransfer + ledgerUpdate + CostEventEmit
}

// ExecutionCost is the full cost of an execution
func ExecutionCost(final bool) uint64 {
	return AdmissionCost() + SettlementCost(final)
}

// EstimateCost is an upper bound of ExecutionCost for any outcome
func EstimateCost() uint64 {
	settlement := SettlementCost(false)
	if s := SettlementCost(true); s > settlement {
		settlement = s
	}
	return AdmissionCost() + settlement
}

// Reimbursement returns the gas token amount owed to the crank for an execution
func Reimbursement(intent *models.PaymentIntent) (*big.Int, error) {
	amount, err := amountmath.GasReimbursement(intent.ExecutionGas, intent.MaxGasPrice)
	if err != nil {
		return nil, fmt.Errorf("gas reimbursement: %w", err)
	}
	return amount, nil
}

// Meter tracks gas used against a declared limit
type Meter struct {
	limit uint64
	used  uint64
}

// NewMeter creates a meter for the declared execution gas
func NewMeter(limit uint64) *Meter {
	return &Meter{limit: limit}
}

// Consume records gas without checking the limit.
// Validation steps consume so that their own errors take precedence.
func (m *Meter) Consume(cost uint64) {
	if m.used > math.MaxUint64-cost {
		m.used = math.MaxUint64
		return
	}
	m.used += cost
}

// Charge records gas and fails once usage exceeds the limit
func (m *Meter) Charge(cost uint64) error {
	m.Consume(cost)
	return m.Check()
}

// Check fails if usage already exceeds the limit
func (m *Meter) Check() error {
	if m.used > m.limit {
		return fmt.Errorf("%w: need %d, declared %d", ErrOutOfGas, m.used, m.limit)
	}
	return nil
}

// Used returns the gas consumed so far
func (m *Meter) Used() uint64 {
	return m.used
}

// Limit returns the declared execution gas
func (m *Meter) Limit() uint64 {
	return m.limit
}
