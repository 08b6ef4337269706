package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
	"github.com/cardstack/scheduled-payment-crank/pkg/period"
)

// Config holds the configuration for the crank service
type Config struct {
	// Module wiring. Zero addresses fall back to the genesis file.
	Owner        common.Address
	Avatar       common.Address
	Target       common.Address
	CrankAddress common.Address
	FeeReceiver  common.Address
	ValidForDays uint64

	// Chain reads. Every on-chain source needs RPCURL.
	RPCURL          string
	ConfigAddress   common.Address
	ExchangeAddress common.Address
	UniswapFactory  common.Address
	USDToken        common.Address
	GasMultiplier   float64

	DBPath       string
	APIEndpoint  string
	IntentsFile  string
	GenesisFile  string
	AutoSchedule bool

	PollingInterval     time.Duration
	WorkerCount         int
	MetricsPort         string
	MetricsAPIKey       string
	CircuitBreaker      CircuitBreakerConfig
	MaxRetries          int
	RateCacheTTL        time.Duration
	RateRefreshInterval time.Duration
	LoggerConfig        LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// UsesChain reports whether any collaborator is read over RPC
func (c *Config) UsesChain() bool {
	zero := common.Address{}
	return c.ConfigAddress != zero || c.ExchangeAddress != zero || c.UniswapFactory != zero
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		IntentsFile:   GetEnvIntentsFile(),
		GenesisFile:   GetEnvGenesisFile(),
		DBPath:        GetEnvDBPath(),
		MetricsAPIKey: GetEnvMetricsAPIKey(),
	}

	addresses := []struct {
		dst *common.Address
		get func() (common.Address, error)
	}{
		{&cfg.Owner, GetEnvOwner},
		{&cfg.Avatar, GetEnvAvatar},
		{&cfg.Target, GetEnvTarget},
		{&cfg.CrankAddress, GetEnvCrankAddress},
		{&cfg.FeeReceiver, GetEnvFeeReceiver},
		{&cfg.ConfigAddress, GetEnvConfigAddress},
		{&cfg.ExchangeAddress, GetEnvExchangeAddress},
		{&cfg.UniswapFactory, GetEnvUniswapFactory},
		{&cfg.USDToken, GetEnvUSDToken},
	}
	for _, a := range addresses {
		addr, err := a.get()
		if err != nil {
			return nil, err
		}
		*a.dst = addr
	}

	var err error
	if cfg.ValidForDays, err = GetEnvValidForDays(); err != nil {
		return nil, err
	}
	if cfg.RPCURL, err = GetEnvRPCURL(); err != nil {
		return nil, err
	}
	if cfg.APIEndpoint, err = GetEnvAPIEndpoint(); err != nil {
		return nil, err
	}
	if cfg.GasMultiplier, err = GetEnvGasMultiplier(); err != nil {
		return nil, err
	}
	if cfg.AutoSchedule, err = GetEnvAutoSchedule(); err != nil {
		return nil, err
	}
	if cfg.PollingInterval, err = GetEnvPollingInterval(); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = GetEnvWorkerCount(); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = GetEnvMetricsPort(); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = GetEnvMaxRetries(); err != nil {
		return nil, err
	}
	if cfg.RateCacheTTL, err = GetEnvRateCacheTTL(); err != nil {
		return nil, err
	}
	if cfg.RateRefreshInterval, err = GetEnvRateRefreshInterval(); err != nil {
		return nil, err
	}

	if cfg.CircuitBreaker.Enabled, err = GetEnvCircuitBreakerEnabled(); err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker.Threshold, err = GetEnvCircuitBreakerThreshold(); err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker.WindowDuration, err = GetEnvCircuitBreakerWindow(); err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker.ResetTimeout, err = GetEnvCircuitBreakerReset(); err != nil {
		return nil, err
	}

	if cfg.LoggerConfig.Level, err = GetEnvLogLevel(); err != nil {
		return nil, err
	}
	if cfg.LoggerConfig.Coloring, err = GetEnvLogColoring(); err != nil {
		return nil, err
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.APIEndpoint == "" && cfg.IntentsFile == "" {
		return fmt.Errorf("INTENTS_API_ENDPOINT or INTENTS_FILE is required")
	}
	if cfg.GenesisFile == "" {
		return fmt.Errorf("GENESIS_FILE is required")
	}
	if cfg.ValidForDays > period.MaxValidForDays {
		return fmt.Errorf("VALID_FOR_DAYS (%d) must not exceed %d", cfg.ValidForDays, period.MaxValidForDays)
	}
	if cfg.UsesChain() && cfg.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required when reading contracts")
	}
	if cfg.UniswapFactory != (common.Address{}) && cfg.USDToken == (common.Address{}) {
		return fmt.Errorf("USD_TOKEN_ADDRESS is required with UNISWAP_FACTORY_ADDRESS")
	}
	if cfg.ExchangeAddress != (common.Address{}) && cfg.UniswapFactory != (common.Address{}) {
		return fmt.Errorf("EXCHANGE_ADDRESS and UNISWAP_FACTORY_ADDRESS are mutually exclusive")
	}
	if cfg.RateRefreshInterval > cfg.RateCacheTTL {
		return fmt.Errorf("RATE_REFRESH_INTERVAL (%v) must not exceed RATE_CACHE_TTL (%v)", cfg.RateRefreshInterval, cfg.RateCacheTTL)
	}
	return nil
}
