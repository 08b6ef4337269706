package crank

import (
	"context"
	"errors"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/cardstack/scheduled-payment-crank/pkg/engine"
	"github.com/cardstack/scheduled-payment-crank/pkg/metrics"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

// worker executes due payments from the job queue
func (c *Crank) worker(ctx context.Context, id int) {
	c.logger.Debug("Starting worker %d", id)
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Worker %d shutting down", id)
			return
		case job := <-c.pendingJobs:
			c.logger.DebugWithPayment(job.Hash, "Worker %d executing payment (attempt #%d)", id, job.RetryCount+1)

			retry := c.process(ctx, job)
			if retry == nil {
				continue
			}
			select {
			case c.retryJobs <- *retry:
			case <-ctx.Done():
				c.release(job.Hash)
				return
			}
		}
	}
}

// process executes job and returns the retry to schedule, if any
func (c *Crank) process(ctx context.Context, job models.RetryJob) *models.RetryJob {
	if c.breaker.IsOpen() {
		c.logger.InfoWithPayment(job.Hash, "Circuit breaker open, skipping payment")
		c.release(job.Hash)
		return nil
	}

	_, err := c.execute(ctx, job)
	if err == nil {
		c.release(job.Hash)
		return nil
	}

	shouldRetry, errorType := shouldRetryError(err)
	c.logger.DebugWithPayment(job.Hash, "Error classified as: %s (retry: %v)", errorType, shouldRetry)

	// Only infrastructure and transfer failures count towards the breaker
	circuitTripped := false
	if shouldRetry {
		circuitTripped = c.breaker.RecordFailure()
		if circuitTripped {
			state := c.breaker.GetState()
			c.logger.Error("Circuit breaker tripped - threshold reached: %d failures in %v window",
				state.FailureCount, state.FailureWindow)
		}
	}

	switch {
	case shouldRetry && !circuitTripped:
		if job.RetryCount >= c.maxRetries {
			c.logger.InfoWithPayment(job.Hash, "Max retries reached, giving up (error: %s)", errorType)
			metrics.MaxRetriesReached.WithLabelValues(errorType).Inc()
			break
		}

		backoff := CalculateBackoff(job.RetryCount)
		retry := job
		retry.RetryCount++
		retry.NextAttempt = c.now().Add(backoff)
		retry.ErrorType = errorType

		c.logger.InfoWithPayment(job.Hash, "Scheduling retry in %v (error: %s)", backoff, errorType)
		return &retry
	case !shouldRetry:
		c.logger.InfoWithPayment(job.Hash, "Not retrying due to permanent error type: %s", errorType)
		metrics.PermanentErrors.WithLabelValues(errorType).Inc()
	default:
		c.logger.InfoWithPayment(job.Hash, "Skipping retry due to tripped circuit breaker")
	}

	c.release(job.Hash)
	return nil
}

// execute runs one execution attempt against the module
func (c *Crank) execute(ctx context.Context, job models.RetryJob) (*engine.Receipt, error) {
	kind := kindOf(job.Intent)
	startTime := time.Now()

	c.execMu.Lock()
	now := uint64(c.now().Unix())
	receipt, err := c.module.ExecuteScheduledPayment(ctx, c.crank, job.Intent, now)
	c.execMu.Unlock()

	metrics.PaymentProcessingTime.WithLabelValues(kind).Observe(time.Since(startTime).Seconds())

	if err != nil {
		_, errorType := shouldRetryError(err)
		metrics.ExecutionErrors.WithLabelValues(errorType).Inc()
		metrics.PaymentsExecuted.WithLabelValues(kind, "failed").Inc()
		c.logger.ErrorWithPayment(job.Hash, "Execution failed: %v", err)

		c.mu.Lock()
		c.failed++
		c.lastError = err.Error()
		c.mu.Unlock()
		return nil, err
	}

	metrics.PaymentsExecuted.WithLabelValues(kind, "success").Inc()
	metrics.GasUsed.Observe(float64(receipt.GasUsed))
	metrics.ActivePayments.Set(float64(c.module.Ledger().Len()))
	recordFees(job.Intent, receipt)
	c.breaker.RecordSuccess()

	c.mu.Lock()
	c.executed++
	c.mu.Unlock()

	if receipt.Final {
		c.forget(ctx, job.Hash)
	}
	c.logger.NoticeWithPayment(job.Hash, "Executed payment of %s to %s", receipt.Amount, receipt.Payee.Hex())
	return receipt, nil
}

// shouldRetryError classifies errors to determine if a retry should be attempted
// Returns (shouldRetry, errorType)
func shouldRetryError(err error) (bool, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return false, "cancelled"
	case errors.Is(err, engine.ErrInvalidPeriod):
		return false, "invalid_period"
	case errors.Is(err, engine.ErrUnknownHash):
		return false, "unknown_hash"
	case errors.Is(err, engine.ErrUnauthorized):
		return false, "unauthorized"
	case errors.Is(err, engine.ErrOutOfGas):
		return false, "out_of_gas"
	case errors.Is(err, engine.ErrArithmeticOverflow):
		return false, "arithmetic_overflow"
	case errors.Is(err, models.ErrInvalidIntent):
		return false, "invalid_intent"
	case errors.Is(err, engine.ErrPaymentExecutionFailed):
		// balances may be topped up before the window closes
		return true, "payment_failed"
	case errors.Is(err, engine.ErrClockRewound):
		return true, "clock_rewound"
	case errors.Is(err, context.DeadlineExceeded):
		return true, "network_error"
	}

	// Network/RPC errors surfaced by config and exchange reads
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "no response") ||
		strings.Contains(errStr, "EOF") {
		return true, "network_error"
	}

	// Unknown errors - retry with caution
	return true, "unknown_error"
}

// CalculateBackoff calculates the backoff duration for retry attempts
func CalculateBackoff(retryCount int) time.Duration {
	// Calculate exponential backoff (2^retry * 10 seconds)
	backoff := time.Duration(math.Pow(2, float64(retryCount))) * 10 * time.Second

	// Set a maximum backoff of 2 minutes
	maxBackoff := 2 * time.Minute
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	return backoff
}

func kindOf(intent *models.PaymentIntent) string {
	if intent.IsRecurring() {
		return "recurring"
	}
	return "one_time"
}

func recordFees(intent *models.PaymentIntent, receipt *engine.Receipt) {
	metrics.FeesCollected.WithLabelValues(intent.Token.Hex(), "percentage").Add(toFloat(receipt.PercentageFee))
	metrics.FeesCollected.WithLabelValues(intent.GasToken.Hex(), "fixed").Add(toFloat(receipt.FixedFee))
	metrics.FeesCollected.WithLabelValues(intent.GasToken.Hex(), "gas").Add(toFloat(receipt.GasReimbursement))
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
