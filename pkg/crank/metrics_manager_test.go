package crank

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
	"github.com/cardstack/scheduled-payment-crank/pkg/metrics"
	"github.com/cardstack/scheduled-payment-crank/pkg/testutil"
)

func TestMetricsManagerUpdate(t *testing.T) {
	f := newFixture(t)
	unknown := testutil.GenerateAddress()
	list := func() []common.Address { return []common.Address{f.token, f.gasToken, unknown} }

	mm := NewMetricsManager(f.avatar, f.world, list, &fixedGasPrice{price: big.NewInt(25_000_000_000)}, &logger.EmptyLogger{})
	mm.UpdateMetrics(context.Background())

	assert.InDelta(t, 25.0, promtestutil.ToFloat64(metrics.GasPrice), 1e-9)
	assert.InDelta(t, 1e9, promtestutil.ToFloat64(metrics.AvatarBalance.WithLabelValues(f.token.Hex())), 1e-6)
	assert.InDelta(t, 1.0, promtestutil.ToFloat64(metrics.AvatarBalance.WithLabelValues(f.gasToken.Hex())), 1e-9)
}

func TestWholeUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
		want     float64
	}{
		{"1000000", 6, 1},
		{"1500000000000000000", 18, 1.5},
		{"0", 18, 0},
		{"42", 0, 42},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, wholeUnits(testutil.CreateBigInt(tt.amount), tt.decimals), 1e-12)
	}
}
