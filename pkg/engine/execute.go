package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/amountmath"
	"github.com/cardstack/scheduled-payment-crank/pkg/contracts"
	"github.com/cardstack/scheduled-payment-crank/pkg/events"
	"github.com/cardstack/scheduled-payment-crank/pkg/gas"
	"github.com/cardstack/scheduled-payment-crank/pkg/hasher"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
	"github.com/cardstack/scheduled-payment-crank/pkg/period"
)

// Receipt describes a successful execution
type Receipt struct {
	Hash   common.Hash
	Marker period.Marker
	// Final is set when the execution retired the hash
	Final bool

	Payee  common.Address
	Amount *big.Int

	FeeReceiver      common.Address
	PercentageFee    *big.Int
	FixedFee         *big.Int
	GasReimbursement *big.Int

	GasUsed uint64
}

// GasFee is the total paid in the gas token
func (r *Receipt) GasFee() *big.Int {
	return new(big.Int).Add(r.FixedFee, r.GasReimbursement)
}

type execution struct {
	hash    common.Hash
	intent  *models.PaymentIntent
	outcome period.Outcome
}

// ExecuteScheduledPayment pays the occurrence of intent that is due at now.
// Only the crank may call it. On any error the avatar's balances and the
// ledger are left exactly as they were and no event is emitted.
func (m *Module) ExecuteScheduledPayment(ctx context.Context, caller common.Address, intent *models.PaymentIntent, now uint64) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	crank, err := m.config.CrankAddress(ctx)
	if err != nil {
		return nil, wrap("executeScheduledPayment", common.Hash{}, fmt.Errorf("failed to read crank address: %w", err))
	}
	if caller != crank {
		return nil, wrap("executeScheduledPayment", common.Hash{}, fmt.Errorf("%w: %s is not the crank", ErrUnauthorized, caller.Hex()))
	}
	if now < m.lastNow {
		return nil, wrap("executeScheduledPayment", common.Hash{}, fmt.Errorf("%w: %d is before %d", ErrClockRewound, now, m.lastNow))
	}

	exec, err := m.admit(ctx, intent, now)
	if err != nil {
		return nil, err
	}

	meter := gas.NewMeter(intent.ExecutionGas)
	meter.Consume(gas.AdmissionCost())
	if err := meter.Charge(gas.SettlementCost(exec.outcome.Final)); err != nil {
		return nil, wrap("executeScheduledPayment", exec.hash, err)
	}

	// events are held back until the ledger commits
	var pending events.Buffer
	snapshot := m.avatar.Snapshot()
	receipt, err := m.transfer(ctx, exec)
	if err != nil {
		m.avatar.RevertToSnapshot(snapshot)
		return nil, wrap("executeScheduledPayment", exec.hash, err)
	}
	pending.Add(events.Event{Kind: events.ScheduledPaymentExecuted, Hash: exec.hash})

	if err := m.ledger.Settle(ctx, exec.hash, exec.outcome.Marker, exec.outcome.Final); err != nil {
		pending.Discard()
		m.avatar.RevertToSnapshot(snapshot)
		return nil, wrap("executeScheduledPayment", exec.hash, err)
	}

	receipt.GasUsed = meter.Used()
	m.lastNow = now
	pending.Flush(m.sink)
	m.logger.InfoWithPayment(exec.hash, "Executed occurrence %d (final=%t): paid %s to %s, fees %s + %s",
		exec.outcome.Marker, exec.outcome.Final, receipt.Amount, receipt.Payee.Hex(), receipt.PercentageFee, receipt.GasFee())
	return receipt, nil
}

// EstimateExecutionGas returns the gas an execution of intent at now
// would need. The intent does not have to be scheduled and its gas fields
// may be zero, so the estimate can be taken before the hash is built. The
// transfers are tried and always rolled back.
func (m *Module) EstimateExecutionGas(ctx context.Context, intent *models.PaymentIntent, now uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	draft := *intent
	if draft.MaxGasPrice == nil {
		draft.MaxGasPrice = new(big.Int)
	}
	hash, err := hasher.Hash(&draft)
	if err != nil {
		return 0, wrap("estimateExecutionGas", common.Hash{}, err)
	}

	exec, err := m.checkPeriod(ctx, "estimateExecutionGas", hash, &draft, now)
	if err != nil {
		return 0, err
	}

	snapshot := m.avatar.Snapshot()
	_, err = m.transfer(ctx, exec)
	m.avatar.RevertToSnapshot(snapshot)
	if err != nil {
		return 0, wrap("estimateExecutionGas", hash, err)
	}
	return gas.EstimateCost(), nil
}

// admit runs the read-only checks of an execution: hash, ledger membership and period
func (m *Module) admit(ctx context.Context, intent *models.PaymentIntent, now uint64) (*execution, error) {
	hash, err := hasher.Hash(intent)
	if err != nil {
		return nil, wrap("executeScheduledPayment", common.Hash{}, err)
	}
	if !m.ledger.IsActive(hash) {
		return nil, wrap("executeScheduledPayment", hash, ErrUnknownHash)
	}
	return m.checkPeriod(ctx, "executeScheduledPayment", hash, intent, now)
}

// checkPeriod admits the occurrence of intent due at now against the marker of hash
func (m *Module) checkPeriod(ctx context.Context, op string, hash common.Hash, intent *models.PaymentIntent, now uint64) (*execution, error) {
	validForDays, err := m.config.ValidForDays(ctx)
	if err != nil {
		return nil, wrap(op, hash, fmt.Errorf("failed to read validForDays: %w", err))
	}
	outcome, err := period.Check(intent, now, validForDays, m.ledger.Marker(hash))
	if err != nil {
		return nil, wrap(op, hash, err)
	}

	return &execution{hash: hash, intent: intent, outcome: outcome}, nil
}

// transfer moves the payment and both fees through the avatar
func (m *Module) transfer(ctx context.Context, exec *execution) (*Receipt, error) {
	intent := exec.intent

	if err := m.call(ctx, intent.Token, intent.Payee, intent.Amount); err != nil {
		return nil, fmt.Errorf("%w: payment transfer: %v", ErrPaymentExecutionFailed, err)
	}

	feeReceiver, err := m.config.FeeReceiver(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee receiver: %w", err)
	}
	fixedFee, err := m.fixedFee(ctx, intent)
	if err != nil {
		return nil, err
	}
	percentageFee, err := amountmath.PercentageFee(intent.Amount, intent.Fee.Percentage)
	if err != nil {
		return nil, fmt.Errorf("percentage fee: %w", err)
	}
	reimbursement, err := gas.Reimbursement(intent)
	if err != nil {
		return nil, err
	}
	gasFee, err := amountmath.Add(fixedFee, reimbursement)
	if err != nil {
		return nil, fmt.Errorf("gas token fee: %w", err)
	}

	if err := m.call(ctx, intent.Token, feeReceiver, percentageFee); err != nil {
		return nil, fmt.Errorf("%w: fee transfer: %v", ErrPaymentExecutionFailed, err)
	}
	if err := m.call(ctx, intent.GasToken, feeReceiver, gasFee); err != nil {
		return nil, fmt.Errorf("%w: fee transfer: %v", ErrPaymentExecutionFailed, err)
	}

	return &Receipt{
		Hash:             exec.hash,
		Marker:           exec.outcome.Marker,
		Final:            exec.outcome.Final,
		Payee:            intent.Payee,
		Amount:           new(big.Int).Set(intent.Amount),
		FeeReceiver:      feeReceiver,
		PercentageFee:    percentageFee,
		FixedFee:         fixedFee,
		GasReimbursement: reimbursement,
	}, nil
}

// fixedFee converts the USD fee into gas token units at the current rate
func (m *Module) fixedFee(ctx context.Context, intent *models.PaymentIntent) (*big.Int, error) {
	rate, base, err := m.rates.ExchangeRateOf(ctx, intent.GasToken)
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange rate of %s: %w", intent.GasToken.Hex(), err)
	}
	decimals, err := m.tokens.Decimals(ctx, intent.GasToken)
	if err != nil {
		return nil, fmt.Errorf("failed to read decimals of %s: %w", intent.GasToken.Hex(), err)
	}
	tokenBase, err := amountmath.DecimalsBase(decimals)
	if err != nil {
		return nil, fmt.Errorf("decimals base: %w", err)
	}
	fee, err := amountmath.Convert(intent.Fee.FixedUSD, rate, base, tokenBase)
	if err != nil {
		return nil, fmt.Errorf("fixed fee: %w", err)
	}
	return fee, nil
}

func (m *Module) call(ctx context.Context, token, to common.Address, amount *big.Int) error {
	data, err := contracts.PackTransfer(to, amount)
	if err != nil {
		return err
	}
	return m.avatar.Execute(ctx, token, big.NewInt(0), data)
}
