package chainclient

import (
	"sync"
	"time"
)

// GasPriceRoutine manages the periodic updates of the network gas price
type GasPriceRoutine struct {
	client   *Client
	interval time.Duration
	stopChan chan struct{}
	mu       sync.RWMutex
	running  bool
}

// NewGasPriceRoutine creates a new gas price routine
func NewGasPriceRoutine(client *Client, interval time.Duration) *GasPriceRoutine {
	return &GasPriceRoutine{
		client:   client,
		interval: interval,
	}
}

// Start begins the periodic updates
func (r *GasPriceRoutine) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return // Already running
	}

	r.stopChan = make(chan struct{})
	r.running = true

	go r.run(r.stopChan)
}

// Stop halts the periodic updates
func (r *GasPriceRoutine) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	close(r.stopChan)
	r.stopChan = nil
	r.running = false
}

// IsRunning returns whether the routine is currently running
func (r *GasPriceRoutine) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// run is the main goroutine that performs periodic updates
func (r *GasPriceRoutine) run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Perform initial update
	r.update()

	for {
		select {
		case <-ticker.C:
			r.update()
		case <-stop:
			return
		case <-r.client.Ctx.Done():
			return
		}
	}
}

func (r *GasPriceRoutine) update() {
	gasPrice, err := r.client.UpdateGasPrice(r.client.Ctx)
	if err != nil {
		r.client.logger.Error("Failed to update gas price: %v", err)
		return
	}
	r.client.logger.Debug("Gas price updated to %s wei", gasPrice)
}
