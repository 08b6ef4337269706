package crank

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/hasher"
	"github.com/cardstack/scheduled-payment-crank/pkg/metrics"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
	"github.com/cardstack/scheduled-payment-crank/pkg/period"
)

// Poll fetches intents, records them and returns the payments due now.
// Returned payments are claimed until they are executed or given up on.
func (c *Crank) Poll(ctx context.Context) []models.RetryJob {
	now := c.now()

	fetched, err := c.source.Fetch(ctx)
	if err != nil {
		// the book still holds what earlier polls saw
		c.logger.Error("Error fetching intents: %v", err)
		c.setLastError(err)
	} else {
		c.logger.Debug("Fetched %d intents", len(fetched))
	}
	for _, wire := range fetched {
		c.remember(ctx, wire)
	}

	c.mu.Lock()
	c.lastPoll = now
	c.mu.Unlock()
	metrics.ActivePayments.Set(float64(c.module.Ledger().Len()))

	if c.breaker.IsOpen() {
		c.logger.Info("Circuit breaker is open, skipping execution")
		return nil
	}

	known, err := c.book.Intents(ctx)
	if err != nil {
		c.logger.Error("Error reading intent book: %v", err)
		c.setLastError(err)
		return nil
	}

	validForDays, err := c.module.ValidForDays(ctx)
	if err != nil {
		c.logger.Error("Error reading valid for days: %v", err)
		c.setLastError(err)
		return nil
	}

	due := c.filterDuePayments(ctx, known, now, validForDays)
	metrics.DuePayments.Set(float64(len(due)))
	if len(due) > 0 {
		c.logger.Info("Found %d due payments", len(due))
	}
	return due
}

// remember saves a fetched intent and schedules it when auto scheduling is on
func (c *Crank) remember(ctx context.Context, wire models.IntentJSON) {
	intent, err := wire.ToIntent()
	if err != nil {
		c.logger.Debug("Skipping intent %s: %v", wire.ID, err)
		return
	}
	hash, err := hasher.Hash(intent)
	if err != nil {
		c.logger.Debug("Skipping intent %s: %v", wire.ID, err)
		return
	}

	ledger := c.module.Ledger()
	if !ledger.IsActive(hash) && ledger.Marker(hash) != 0 {
		// executed before and since retired or cancelled
		return
	}

	if err := c.book.SaveIntent(ctx, hash, wire); err != nil {
		c.logger.ErrorWithPayment(hash, "Failed to save intent: %v", err)
	}

	if c.autoSchedule && !ledger.IsActive(hash) {
		nonce, err := c.module.SchedulePayment(ctx, c.module.AvatarAddress(), hash)
		if err != nil {
			c.logger.ErrorWithPayment(hash, "Failed to schedule payment: %v", err)
			return
		}
		c.logger.InfoWithPayment(hash, "Scheduled payment with nonce %d", nonce)
	}
}

// filterDuePayments keeps the scheduled intents whose execution window contains now
func (c *Crank) filterDuePayments(ctx context.Context, known []models.IntentJSON, now time.Time, validForDays uint64) []models.RetryJob {
	ts := uint64(now.Unix())
	ledger := c.module.Ledger()

	var due []models.RetryJob
	for _, wire := range known {
		intent, err := wire.ToIntent()
		if err != nil {
			continue
		}
		hash, err := hasher.Hash(intent)
		if err != nil {
			continue
		}

		if !ledger.IsActive(hash) {
			if ledger.Marker(hash) != 0 {
				c.forget(ctx, hash)
			} else {
				c.logger.DebugWithPayment(hash, "Skipping payment: not scheduled")
			}
			continue
		}

		window, ok := period.NextWindow(intent, ts, validForDays, ledger.Marker(hash))
		if !ok {
			c.logger.DebugWithPayment(hash, "Skipping payment: no further occurrence")
			continue
		}
		if !window.Contains(ts) {
			c.logger.DebugWithPayment(hash, "Skipping payment: next window opens at %s",
				time.Unix(int64(window.Start), 0).UTC().Format(time.RFC3339))
			continue
		}

		if !c.isGasPriceAcceptable(hash, intent) {
			metrics.DeferredPayments.WithLabelValues("gas_price_too_high").Inc()
			continue
		}

		if !c.claim(hash) {
			c.logger.DebugWithPayment(hash, "Skipping payment: already queued")
			continue
		}

		due = append(due, models.RetryJob{Hash: hash, Intent: intent, NextAttempt: now})
	}
	return due
}

// isGasPriceAcceptable defers payments whose max gas price is below the network price
func (c *Crank) isGasPriceAcceptable(hash common.Hash, intent *models.PaymentIntent) bool {
	if c.gasPrice == nil {
		return true
	}
	price := c.gasPrice.CurrentGasPrice()
	if price == nil || price.Cmp(intent.MaxGasPrice) <= 0 {
		return true
	}
	c.logger.InfoWithPayment(hash, "Deferring payment: gas price %s above max %s", price, intent.MaxGasPrice)
	return false
}

func (c *Crank) forget(ctx context.Context, hash common.Hash) {
	if err := c.book.DeleteIntent(ctx, hash); err != nil {
		c.logger.ErrorWithPayment(hash, "Failed to delete intent: %v", err)
	}
}

func (c *Crank) setLastError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = err.Error()
}
