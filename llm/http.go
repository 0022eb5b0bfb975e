package llm

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// MaxResponseSize limits provider response bodies to prevent memory
// exhaustion.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// ClassifyHTTPError turns a non-200 provider response into a transient,
// auth, or fatal error.
func ClassifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient.
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient.
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		return NewAuthError(err)
	case statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		// Unknown errors default to fatal.
		return NewFatalError(err)
	}
}

// Backoff computes the backoff before retry attempt+1 with +/-25% jitter to
// avoid synchronized retries.
func Backoff(cfg RetryConfig, attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= cfg.BackoffMultiplier
	}

	backoff := time.Duration(float64(cfg.BackoffBase) * multiplier)
	if backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}
