package dispatch

import (
	"time"
)

// RetryPolicy defines the exponential backoff parameters for delivery
// retries.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy matches the documented dispatch defaults: up to 5
// attempts, 30s base delay doubling to a 15 minute ceiling.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   5,
	BaseDelay:     30 * time.Second,
	MaxDelay:      15 * time.Minute,
	BackoffFactor: 2.0,
}

// CalculateNextRetry computes the delay before the next retry attempt using
// exponential backoff: delay = min(BaseDelay * BackoffFactor^attempt, MaxDelay).
// A provider Retry-After hint overrides the computed delay when it is longer,
// since retrying earlier than the provider asked is a guaranteed failure.
func CalculateNextRetry(policy RetryPolicy, attempt int, retryAfter *time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if d > policy.MaxDelay || d < 0 {
		// The negative branch guards against overflow.
		d = policy.MaxDelay
	}

	if retryAfter != nil && *retryAfter > d {
		d = *retryAfter
	}

	return d
}

// Exhausted reports whether the given attempt count has used up the policy's
// budget.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
