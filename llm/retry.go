package llm

import "time"

// RetryConfig holds retry settings for provider requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per request.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns retry defaults for providers that retry
// transport failures themselves.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// NoRetryConfig returns a single-attempt configuration for providers whose
// callers handle retries.
func NoRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 1, BackoffBase: time.Second, BackoffMultiplier: 1.0, MaxBackoff: time.Second}
}
