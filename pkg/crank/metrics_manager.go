package crank

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/engine"
	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
	"github.com/cardstack/scheduled-payment-crank/pkg/metrics"
)

// metricsInterval is how often the gauges are refreshed
const metricsInterval = 30 * time.Second

// MetricsManager periodically publishes the avatar balances and the network gas price
type MetricsManager struct {
	avatar   common.Address
	tokens   engine.TokenInfo
	list     func() []common.Address
	gasPrice GasPricer
	logger   logger.Logger
}

// NewMetricsManager creates a metrics manager. gasPrice may be nil.
func NewMetricsManager(avatar common.Address, tokens engine.TokenInfo, list func() []common.Address, gasPrice GasPricer, logger logger.Logger) *MetricsManager {
	return &MetricsManager{
		avatar:   avatar,
		tokens:   tokens,
		list:     list,
		gasPrice: gasPrice,
		logger:   logger,
	}
}

// UpdateMetrics updates all metrics
func (mm *MetricsManager) UpdateMetrics(ctx context.Context) {
	mm.logger.Debug("Updating metrics...")

	if mm.gasPrice != nil {
		if price := mm.gasPrice.CurrentGasPrice(); price != nil {
			// 1 gwei = 10^9 wei
			gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(price), big.NewFloat(1e9)).Float64()
			metrics.GasPrice.Set(gwei)
		}
	}

	for _, token := range mm.list() {
		balance, err := mm.tokens.BalanceOf(ctx, token, mm.avatar)
		if err != nil {
			mm.logger.Debug("Failed to read balance of %s: %v", token.Hex(), err)
			continue
		}
		decimals, err := mm.tokens.Decimals(ctx, token)
		if err != nil {
			mm.logger.Debug("Failed to read decimals of %s: %v", token.Hex(), err)
			continue
		}
		metrics.AvatarBalance.WithLabelValues(token.Hex()).Set(wholeUnits(balance, decimals))
	}
}

// StartMetricsUpdater updates the metrics until ctx is cancelled
func (mm *MetricsManager) StartMetricsUpdater(ctx context.Context) {
	mm.logger.Info("Starting metrics updater")
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	mm.UpdateMetrics(ctx)
	for {
		select {
		case <-ctx.Done():
			mm.logger.Info("Metrics updater shutting down")
			return
		case <-ticker.C:
			mm.UpdateMetrics(ctx)
		}
	}
}

func wholeUnits(amount *big.Int, decimals uint8) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Float64()
	return f
}
