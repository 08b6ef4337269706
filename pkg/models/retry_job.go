package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RetryJob represents a scheduled retry for a payment execution
type RetryJob struct {
	Hash        common.Hash
	Intent      *PaymentIntent
	RetryCount  int
	NextAttempt time.Time
	ErrorType   string // Type of error that caused the retry
}
