package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
)

const (
	// DefaultPollingInterval defines the default polling interval in seconds
	DefaultPollingInterval = 15

	// DefaultWorkerCount defines the default number of workers executing payments
	DefaultWorkerCount = 5

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultValidForDays is the execution grace period when neither the env nor the genesis sets one
	DefaultValidForDays = 3

	// DefaultDBPath defines where the ledger database lives
	DefaultDBPath = "crank.db"

	// DefaultGenesisFile defines the simulated world loaded at startup
	DefaultGenesisFile = "genesis.json"

	// DefaultAutoSchedule defines whether fetched intents are scheduled on the avatar's behalf
	DefaultAutoSchedule = false

	// DefaultGasMultiplier defines the multiplier applied to the suggested gas price
	DefaultGasMultiplier = 1.1

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Minute

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Minute

	// DefaultMaxRetries defines the maximum number of retries of a failed execution
	DefaultMaxRetries = 3

	// DefaultRateCacheTTL defines how long an exchange rate is reused
	DefaultRateCacheTTL = 5 * time.Minute

	// DefaultRateRefreshInterval defines how often cached rates are refreshed
	DefaultRateRefreshInterval = time.Minute

	// DefaultLogLevel defines the default log level
	DefaultLogLevel = logger.InfoLevel

	// DefaultLogColoring defines whether log prefixes are colored
	DefaultLogColoring = true
)

// GetEnvOwner returns the module owner, MODULE_OWNER
func GetEnvOwner() (common.Address, error) {
	return getEnvAddress("MODULE_OWNER")
}

// GetEnvAvatar returns the avatar address, AVATAR_ADDRESS
func GetEnvAvatar() (common.Address, error) {
	return getEnvAddress("AVATAR_ADDRESS")
}

// GetEnvTarget returns the module target, TARGET_ADDRESS
func GetEnvTarget() (common.Address, error) {
	return getEnvAddress("TARGET_ADDRESS")
}

// GetEnvCrankAddress returns the crank address, CRANK_ADDRESS
func GetEnvCrankAddress() (common.Address, error) {
	return getEnvAddress("CRANK_ADDRESS")
}

// GetEnvFeeReceiver returns the fee receiver, FEE_RECEIVER
func GetEnvFeeReceiver() (common.Address, error) {
	return getEnvAddress("FEE_RECEIVER")
}

// GetEnvConfigAddress returns the on-chain config contract, CONFIG_ADDRESS
func GetEnvConfigAddress() (common.Address, error) {
	return getEnvAddress("CONFIG_ADDRESS")
}

// GetEnvExchangeAddress returns the on-chain exchange contract, EXCHANGE_ADDRESS
func GetEnvExchangeAddress() (common.Address, error) {
	return getEnvAddress("EXCHANGE_ADDRESS")
}

// GetEnvUniswapFactory returns the Uniswap v3 factory used for TWAP rates, UNISWAP_FACTORY_ADDRESS
func GetEnvUniswapFactory() (common.Address, error) {
	return getEnvAddress("UNISWAP_FACTORY_ADDRESS")
}

// GetEnvUSDToken returns the USD stable token TWAP rates are quoted in, USD_TOKEN_ADDRESS
func GetEnvUSDToken() (common.Address, error) {
	return getEnvAddress("USD_TOKEN_ADDRESS")
}

// GetEnvValidForDays returns the execution grace period in days.
// Zero means unset.
func GetEnvValidForDays() (uint64, error) {
	days := os.Getenv("VALID_FOR_DAYS")
	if days == "" {
		return 0, nil
	}

	parsed, err := strconv.ParseUint(days, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid VALID_FOR_DAYS value: %s, must be a non-negative integer", days)
	}
	return parsed, nil
}

// GetEnvRPCURL returns the JSON-RPC endpoint from environment variables
func GetEnvRPCURL() (string, error) {
	return getEnvURL("RPC_URL")
}

// GetEnvAPIEndpoint returns the hub API endpoint from environment variables
func GetEnvAPIEndpoint() (string, error) {
	return getEnvURL("INTENTS_API_ENDPOINT")
}

// GetEnvIntentsFile returns the path of a local intents file
func GetEnvIntentsFile() string {
	return os.Getenv("INTENTS_FILE")
}

// GetEnvGenesisFile returns the path of the genesis file
func GetEnvGenesisFile() string {
	if path := os.Getenv("GENESIS_FILE"); path != "" {
		return path
	}
	return DefaultGenesisFile
}

// GetEnvDBPath returns the path of the ledger database
func GetEnvDBPath() string {
	if path := os.Getenv("DB_PATH"); path != "" {
		return path
	}
	return DefaultDBPath
}

// GetEnvAutoSchedule returns whether fetched intents are scheduled automatically
func GetEnvAutoSchedule() (bool, error) {
	return getEnvBool("AUTO_SCHEDULE", DefaultAutoSchedule)
}

// GetEnvPollingInterval returns the polling interval in seconds from environment variables
func GetEnvPollingInterval() (time.Duration, error) {
	pollingInterval := os.Getenv("POLLING_INTERVAL")
	if pollingInterval == "" {
		return time.Duration(DefaultPollingInterval) * time.Second, nil
	}

	interval, err := strconv.Atoi(pollingInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid POLLING_INTERVAL value: %s, must be an integer", pollingInterval)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("POLLING_INTERVAL must be greater than 0")
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvWorkerCount returns the number of workers from environment variables
func GetEnvWorkerCount() (int, error) {
	workerCount := os.Getenv("WORKER_COUNT")
	if workerCount == "" {
		return DefaultWorkerCount, nil
	}

	count, err := strconv.Atoi(workerCount)
	if err != nil {
		return 0, fmt.Errorf("invalid WORKER_COUNT value: %s, must be an integer", workerCount)
	}
	if count <= 0 {
		return 0, fmt.Errorf("WORKER_COUNT must be greater than 0")
	}
	return count, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvMetricsAPIKey returns the bearer key protecting /metrics
func GetEnvMetricsAPIKey() string {
	return os.Getenv("METRICS_API_KEY")
}

// GetEnvGasMultiplier returns the multiplier applied to suggested gas prices
func GetEnvGasMultiplier() (float64, error) {
	multiplier := os.Getenv("GAS_MULTIPLIER")
	if multiplier == "" {
		return DefaultGasMultiplier, nil
	}

	parsed, err := strconv.ParseFloat(multiplier, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid GAS_MULTIPLIER value: %s, must be a number", multiplier)
	}
	if parsed < 1 {
		return 0, fmt.Errorf("GAS_MULTIPLIER must be at least 1")
	}
	return parsed, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvMaxRetries returns the maximum number of retries from environment variables
func GetEnvMaxRetries() (int, error) {
	maxRetries := os.Getenv("MAX_RETRIES")
	if maxRetries == "" {
		return DefaultMaxRetries, nil
	}

	maxRetriesInt, err := strconv.Atoi(maxRetries)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_RETRIES value: %s, must be an integer", maxRetries)
	}
	if maxRetriesInt < 0 {
		return 0, fmt.Errorf("MAX_RETRIES must be greater than or equal to 0")
	}
	return maxRetriesInt, nil
}

// GetEnvRateCacheTTL returns how long exchange rates are cached
func GetEnvRateCacheTTL() (time.Duration, error) {
	return getEnvDuration("RATE_CACHE_TTL", DefaultRateCacheTTL)
}

// GetEnvRateRefreshInterval returns how often cached exchange rates are refreshed
func GetEnvRateRefreshInterval() (time.Duration, error) {
	return getEnvDuration("RATE_REFRESH_INTERVAL", DefaultRateRefreshInterval)
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return DefaultLogLevel, nil
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %s: %v", level, err)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log output is colored
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", DefaultLogColoring)
}

// getEnvAddress returns the zero address when the variable is unset
func getEnvAddress(key string) (common.Address, error) {
	value := os.Getenv(key)
	if value == "" {
		return common.Address{}, nil
	}

	// Validate Ethereum address format
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s value: %s, must be a valid Ethereum address", key, value)
	}
	return common.HexToAddress(value), nil
}

func getEnvURL(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(value); err != nil {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid URL", key, value)
	}
	return value, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	if value == "true" {
		return true, nil
	} else if value == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}
