package llm

import (
	"errors"
	"fmt"
)

// Error types for classifying provider failures. Callers map auth and
// unsupported-provider errors to client errors, transient errors to gateway
// errors after retries are exhausted.

// TransientError represents a temporary failure (network, rate limit, 5xx)
// that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// AuthError represents missing or invalid provider credentials. Never
// retried: the caller must supply different configuration.
type AuthError struct {
	err error
}

func (e *AuthError) Error() string {
	return e.err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.err
}

// NewAuthError wraps an error as an authentication failure.
func NewAuthError(err error) error {
	return &AuthError{err: err}
}

// FatalError represents a permanent failure that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// UnsupportedProviderError reports an unknown provider name or an
// unresolvable model id.
type UnsupportedProviderError struct {
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported LLM provider: %q (use %v)", e.Name, RegisteredProviders())
}

// IsTransient returns true if the error should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsAuth returns true if the error is an authentication failure.
func IsAuth(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}

// IsFatal returns true if the error must not be retried. Auth and
// unsupported-provider errors are fatal by definition.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal) || IsAuth(err) || IsUnsupportedProvider(err)
}

// IsUnsupportedProvider returns true for unknown provider names or model ids.
func IsUnsupportedProvider(err error) bool {
	var unsupported *UnsupportedProviderError
	return errors.As(err, &unsupported)
}
