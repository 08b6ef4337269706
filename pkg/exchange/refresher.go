package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
)

// Refresher keeps the rates of a set of tokens warm in a CachedSource
type Refresher struct {
	ctx      context.Context
	source   *CachedSource
	tokens   func() []common.Address
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
	mu       sync.RWMutex
	running  bool
	logger   logger.Logger
}

// NewRefresher creates a refresher. tokens is called on every tick so the
// set can follow the scheduled payments.
func NewRefresher(ctx context.Context, source *CachedSource, tokens func() []common.Address, interval time.Duration, log logger.Logger) *Refresher {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Refresher{
		ctx:      ctx,
		source:   source,
		tokens:   tokens,
		interval: interval,
		logger:   log,
	}
}

// Start begins the periodic refresh
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	r.running = true

	go r.run(r.stopChan, r.done)
}

// Stop halts the refresh and waits for the goroutine to exit
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopChan)
	done := r.done
	r.stopChan = nil
	r.running = false
	r.mu.Unlock()

	<-done
}

// IsRunning returns whether the refresher is currently running
func (r *Refresher) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Refresher) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Perform initial update
	r.refresh()

	for {
		select {
		case <-ticker.C:
			r.refresh()
		case <-stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

// refresh updates every tracked token once
func (r *Refresher) refresh() {
	for _, token := range r.tokens() {
		rate, _, err := r.source.Refresh(r.ctx, token)
		if err != nil {
			r.logger.Error("Failed to refresh exchange rate of %s: %v", token.Hex(), err)
			continue
		}
		r.logger.Debug("Exchange rate of %s is %s", token.Hex(), rate)
	}
}
