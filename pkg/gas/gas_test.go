package gas

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardstack/scheduled-payment-crank/pkg/amountmath"
	"github.com/cardstack/scheduled-payment-crank/pkg/testutil"
)

func TestCosts(t *testing.T) {
	assert.Equal(t, AdmissionCost()+SettlementCost(false), ExecutionCost(false))
	assert.Equal(t, AdmissionCost()+SettlementCost(true), ExecutionCost(true))
	assert.GreaterOrEqual(t, EstimateCost(), ExecutionCost(false))
	assert.GreaterOrEqual(t, EstimateCost(), ExecutionCost(true))
	assert.Greater(t, ExecutionCost(true), uint64(2500))
}

func TestMeter(t *testing.T) {
	tests := []struct {
		name    string
		limit   uint64
		wantErr bool
	}{
		{"declared 2500", 2500, true},
		{"one short", ExecutionCost(true) - 1, true},
		{"exact", ExecutionCost(true), false},
		{"estimate", EstimateCost(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMeter(tt.limit)
			m.Consume(AdmissionCost())
			err := m.Charge(SettlementCost(true))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfGas)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, ExecutionCost(true), m.Used())
			assert.Equal(t, tt.limit, m.Limit())
		})
	}
}

func TestMeterConsumeDoesNotFail(t *testing.T) {
	m := NewMeter(10)
	m.Consume(100)
	assert.ErrorIs(t, m.Check(), ErrOutOfGas)

	m.Consume(math.MaxUint64)
	assert.Equal(t, uint64(math.MaxUint64), m.Used())
}

func TestReimbursement(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	intent := testutil.OneTimeIntent(addr, addr, addr, 1)
	intent.ExecutionGas = 150000
	intent.MaxGasPrice = big.NewInt(2_000_000_000)

	amount, err := Reimbursement(intent)
	require.NoError(t, err)
	testutil.AssertBigIntEqual(t, big.NewInt(300_000_000_000_000), amount)

	intent.MaxGasPrice = new(big.Int).Lsh(big.NewInt(1), 255)
	_, err = Reimbursement(intent)
	assert.ErrorIs(t, err, amountmath.ErrArithmeticOverflow)
}
