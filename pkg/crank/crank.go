// Package crank is the off-chain service that executes scheduled payments
// once they fall due.
package crank

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/circuitbreaker"
	"github.com/cardstack/scheduled-payment-crank/pkg/engine"
	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

const (
	// maxRetryQueueSize limits the retry queue
	maxRetryQueueSize = 1000

	// maxRetriesPerTick bounds how many retries are released at once
	maxRetriesPerTick = 10

	// retryTick is the default cadence of the retry handler
	retryTick = 10 * time.Second
)

// IntentSource supplies the intents the crank should know about
type IntentSource interface {
	Fetch(ctx context.Context) ([]models.IntentJSON, error)
}

// IntentBook remembers intents across restarts
type IntentBook interface {
	SaveIntent(ctx context.Context, hash common.Hash, intent models.IntentJSON) error
	Intents(ctx context.Context) ([]models.IntentJSON, error)
	DeleteIntent(ctx context.Context, hash common.Hash) error
}

// GasPricer reports the current network gas price. A nil price disables deferral.
type GasPricer interface {
	CurrentGasPrice() *big.Int
}

// Options configures a Crank
type Options struct {
	Module *engine.Module
	Source IntentSource
	// Book defaults to an in-memory book
	Book    IntentBook
	Breaker *circuitbreaker.CircuitBreaker
	// GasPrice is optional
	GasPrice GasPricer

	// Crank is the address executions are sent from
	Crank common.Address

	Workers         int
	MaxRetries      int
	PollingInterval time.Duration
	// AutoSchedule schedules fetched intents that are not active yet, acting as the avatar
	AutoSchedule bool

	Now    func() time.Time
	Logger logger.Logger
}

// Crank polls intents, filters the due ones and executes them with a worker pool
type Crank struct {
	module   *engine.Module
	source   IntentSource
	book     IntentBook
	breaker  *circuitbreaker.CircuitBreaker
	gasPrice GasPricer
	crank    common.Address

	workers         int
	maxRetries      int
	pollingInterval time.Duration
	autoSchedule    bool

	now    func() time.Time
	logger logger.Logger

	pendingJobs chan models.RetryJob
	retryJobs   chan models.RetryJob

	// execMu pairs the clock read with the execution so time never runs backwards
	execMu sync.Mutex

	mu         sync.Mutex
	inflight   map[common.Hash]struct{}
	retryQueue int
	lastPoll   time.Time
	lastError  string
	executed   int
	failed     int
	running    bool
}

// New creates a crank
func New(opts Options) (*Crank, error) {
	if opts.Module == nil {
		return nil, fmt.Errorf("module is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("intent source is required")
	}
	if opts.Crank == (common.Address{}) {
		return nil, fmt.Errorf("crank address is required")
	}

	c := &Crank{
		module:          opts.Module,
		source:          opts.Source,
		book:            opts.Book,
		breaker:         opts.Breaker,
		gasPrice:        opts.GasPrice,
		crank:           opts.Crank,
		workers:         opts.Workers,
		maxRetries:      opts.MaxRetries,
		pollingInterval: opts.PollingInterval,
		autoSchedule:    opts.AutoSchedule,
		now:             opts.Now,
		logger:          opts.Logger,
		pendingJobs:     make(chan models.RetryJob, 100), // Buffer for due payments
		retryJobs:       make(chan models.RetryJob, 100), // Buffer for retry jobs
		inflight:        make(map[common.Hash]struct{}),
	}
	if c.book == nil {
		c.book = newMemoryBook()
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.NewCircuitBreaker(false, 0, 0, 0)
	}
	if c.workers <= 0 {
		c.workers = 1
	}
	if c.pollingInterval <= 0 {
		c.pollingInterval = 15 * time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = &logger.EmptyLogger{}
	}
	return c, nil
}

// Breaker returns the execution circuit breaker
func (c *Crank) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Start runs the crank until ctx is cancelled
func (c *Crank) Start(ctx context.Context) {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	var wg sync.WaitGroup

	c.logger.Notice("Starting worker pool with %d workers", c.workers)
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.retryHandler(ctx)
	}()

	c.logger.Info("Starting crank with polling interval %v", c.pollingInterval)
	ticker := time.NewTicker(c.pollingInterval)
	defer ticker.Stop()

	c.pollAndQueue(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Notice("Context cancelled, shutting down crank")
			wg.Wait() // Wait for all workers to finish
			return
		case <-ticker.C:
			c.pollAndQueue(ctx)
		}
	}
}

func (c *Crank) pollAndQueue(ctx context.Context) {
	for _, job := range c.Poll(ctx) {
		select {
		case c.pendingJobs <- job:
		case <-ctx.Done():
			c.release(job.Hash)
			return
		}
	}
}

// Result is the outcome of one execution attempt
type Result struct {
	Hash    common.Hash
	Receipt *engine.Receipt
	Err     error
}

// RunOnce polls and executes every due payment inline. Failed payments
// are not queued for retry, the next run picks them up again.
func (c *Crank) RunOnce(ctx context.Context) []Result {
	var results []Result
	for _, job := range c.Poll(ctx) {
		receipt, err := c.execute(ctx, job)
		c.release(job.Hash)
		results = append(results, Result{Hash: job.Hash, Receipt: receipt, Err: err})
	}
	return results
}

// Status is a point-in-time view of the crank
type Status struct {
	Running        bool                 `json:"running"`
	ActivePayments int                  `json:"active_payments"`
	InFlight       int                  `json:"in_flight"`
	RetryQueue     int                  `json:"retry_queue"`
	Executed       int                  `json:"executed"`
	Failed         int                  `json:"failed"`
	LastPoll       time.Time            `json:"last_poll"`
	LastError      string               `json:"last_error,omitempty"`
	Breaker        circuitbreaker.State `json:"circuit_breaker"`
}

// Status reports the crank's counters
func (c *Crank) Status() Status {
	breaker := c.breaker.GetState()
	active := c.module.Ledger().Len()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Running:        c.running,
		ActivePayments: active,
		InFlight:       len(c.inflight),
		RetryQueue:     c.retryQueue,
		Executed:       c.executed,
		Failed:         c.failed,
		LastPoll:       c.lastPoll,
		LastError:      c.lastError,
		Breaker:        breaker,
	}
}

// Ready reports whether the crank has completed a poll
func (c *Crank) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.lastPoll.IsZero()
}

// claim marks hash as queued. It fails when hash is already queued or retrying.
func (c *Crank) claim(hash common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[hash]; ok {
		return false
	}
	c.inflight[hash] = struct{}{}
	return true
}

func (c *Crank) release(hash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, hash)
}

// memoryBook is the default IntentBook
type memoryBook struct {
	mu      sync.Mutex
	order   []common.Hash
	intents map[common.Hash]models.IntentJSON
}

func newMemoryBook() *memoryBook {
	return &memoryBook{intents: make(map[common.Hash]models.IntentJSON)}
}

func (b *memoryBook) SaveIntent(_ context.Context, hash common.Hash, intent models.IntentJSON) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.intents[hash]; ok {
		return nil
	}
	b.order = append(b.order, hash)
	b.intents[hash] = intent
	return nil
}

func (b *memoryBook) Intents(_ context.Context) ([]models.IntentJSON, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.IntentJSON, 0, len(b.order))
	for _, h := range b.order {
		out = append(out, b.intents[h])
	}
	return out, nil
}

func (b *memoryBook) DeleteIntent(_ context.Context, hash common.Hash) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.intents[hash]; !ok {
		return nil
	}
	delete(b.intents, hash)
	for i, h := range b.order {
		if h == hash {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}
