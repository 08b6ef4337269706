package crank

import (
	"context"
	"sort"
	"time"

	"github.com/cardstack/scheduled-payment-crank/pkg/metrics"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

// retryHandler manages the retry queue
func (c *Crank) retryHandler(ctx context.Context) {
	ticker := time.NewTicker(retryTick)
	defer ticker.Stop()

	var retryQueue []models.RetryJob

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.retryJobs:
			if len(retryQueue) >= maxRetryQueueSize {
				c.logger.ErrorWithPayment(job.Hash, "Retry queue at capacity (%d jobs), dropping retry", maxRetryQueueSize)
				c.release(job.Hash)
				metrics.DroppedRetries.Inc()
			} else {
				retryQueue = append(retryQueue, job)

				// Sort the queue by next attempt time for efficiency
				sort.Slice(retryQueue, func(i, j int) bool {
					return retryQueue[i].NextAttempt.Before(retryQueue[j].NextAttempt)
				})
			}
			c.setRetryQueue(len(retryQueue))
		case <-ticker.C:
			now := c.now()
			var processed int
			retryQueue, processed = c.releaseRetries(retryQueue, now)
			c.setRetryQueue(len(retryQueue))

			if processed >= maxRetriesPerTick && len(retryQueue) > 0 {
				// More jobs are ready - check again sooner
				ticker.Reset(1 * time.Second)
			} else if len(retryQueue) > 0 {
				// Set ticker to just after the time of the next job
				waitTime := retryQueue[0].NextAttempt.Sub(now)
				if waitTime < time.Second {
					waitTime = 1 * time.Second
				} else if waitTime > retryTick {
					waitTime = retryTick
				}
				ticker.Reset(waitTime)
			} else {
				ticker.Reset(retryTick)
			}
		}
	}
}

// releaseRetries hands ready jobs back to the workers and returns the rest.
// Payments that are no longer scheduled are dropped.
func (c *Crank) releaseRetries(queue []models.RetryJob, now time.Time) ([]models.RetryJob, int) {
	metrics.RetryQueueSize.Set(float64(len(queue)))

	var remaining []models.RetryJob
	processed := 0
	for _, job := range queue {
		if job.NextAttempt.After(now) || processed >= maxRetriesPerTick {
			remaining = append(remaining, job)
			continue
		}

		if !c.module.IsActive(job.Hash) {
			c.logger.InfoWithPayment(job.Hash, "Payment is no longer scheduled, removing from retry queue")
			c.release(job.Hash)
			continue
		}

		select {
		case c.pendingJobs <- job:
			c.logger.InfoWithPayment(job.Hash, "Retrying payment (attempt #%d, error type: %s)", job.RetryCount+1, job.ErrorType)
			metrics.RetriesExecuted.WithLabelValues(job.ErrorType).Inc()
			processed++
		default:
			// workers are saturated, try again next tick
			remaining = append(remaining, job)
		}
	}
	return remaining, processed
}

func (c *Crank) setRetryQueue(n int) {
	metrics.RetryQueueSize.Set(float64(n))
	c.mu.Lock()
	c.retryQueue = n
	c.mu.Unlock()
}
