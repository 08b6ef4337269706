package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
)

// DefaultGasMultiplier adds a 10% buffer to the suggested gas price
const DefaultGasMultiplier = 1.1

// GasPricer suggests the network gas price
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Backend is what the client needs from an RPC connection
type Backend interface {
	bind.ContractCaller
	GasPricer
}

// Client reads the module's collaborator contracts over RPC
type Client struct {
	Ctx           context.Context
	RPCURL        string
	GasMultiplier float64

	backend Backend
	logger  logger.Logger

	mu              sync.RWMutex
	currentGasPrice *big.Int
	decimals        map[string]uint8
}

// New dials rpcURL and creates a client
func New(ctx context.Context, rpcURL string, gasMultiplier float64, log logger.Logger) (*Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to client: %v", err)
	}
	c := NewWithBackend(ctx, client, gasMultiplier, log)
	c.RPCURL = rpcURL
	return c, nil
}

// NewWithBackend creates a client over an existing backend
func NewWithBackend(ctx context.Context, backend Backend, gasMultiplier float64, log logger.Logger) *Client {
	if gasMultiplier <= 0 {
		gasMultiplier = DefaultGasMultiplier
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Client{
		Ctx:           ctx,
		GasMultiplier: gasMultiplier,
		backend:       backend,
		logger:        log,
		decimals:      make(map[string]uint8),
	}
}

// UpdateGasPrice refreshes the gas price based on current network conditions
func (c *Client) UpdateGasPrice(ctx context.Context) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	gasPrice, err := c.backend.SuggestGasPrice(timeoutCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %v", err)
	}

	// Apply gas multiplier (e.g. 1.1 = 10% buffer)
	multipliedGasPrice := new(big.Float).Mul(
		new(big.Float).SetInt(gasPrice),
		big.NewFloat(c.GasMultiplier),
	)
	finalGasPrice := new(big.Int)
	multipliedGasPrice.Int(finalGasPrice)

	c.mu.Lock()
	c.currentGasPrice = finalGasPrice
	c.mu.Unlock()

	return finalGasPrice, nil
}

// CurrentGasPrice returns the last refreshed gas price, nil before the first refresh
func (c *Client) CurrentGasPrice() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentGasPrice == nil {
		return nil
	}
	return new(big.Int).Set(c.currentGasPrice)
}

func (c *Client) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}
