package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory is the normalized failure taxonomy shared by all providers.
// Timeouts, outages and rate limiting are retryable and count against a
// provider's circuit breaker; the rest are answers from a working service.
type ErrorCategory string

const (
	ErrorTimeout          ErrorCategory = "timeout"
	ErrorBadData          ErrorCategory = "bad_data"
	ErrorAuthentication   ErrorCategory = "authentication"
	ErrorProviderOutage   ErrorCategory = "provider_outage"
	ErrorContractMismatch ErrorCategory = "contract_mismatch" // response shape changed
	ErrorNotFound         ErrorCategory = "not_found"
	ErrorRateLimited      ErrorCategory = "rate_limited"
	ErrorInternal         ErrorCategory = "internal"
)

type ProviderError struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	msg := "provider " + e.ProviderID + " [" + string(e.Category) + "]: " + e.Message
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", msg, e.Underlying)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

func NewProviderError(category ErrorCategory, providerID, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
		Retryable:  category.Retryable(),
	}
}

// Retryable reports whether the category describes a transient failure.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case ErrorTimeout, ErrorProviderOutage, ErrorRateLimited:
		return true
	}
	return false
}

// CategoryForStatus maps a non-2xx HTTP status onto the taxonomy.
func CategoryForStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusNotFound:
		return ErrorNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuthentication
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTimeout
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrorContractMismatch
	case status >= 500:
		return ErrorProviderOutage
	default:
		return ErrorInternal
	}
}

// CategoryForTransport classifies an error returned by the HTTP client.
func CategoryForTransport(err error) ErrorCategory {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return ErrorTimeout
	}
	return ErrorProviderOutage
}

func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory returns ErrorInternal for errors outside the taxonomy.
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

var ErrNoProvidersAvailable = errors.New("no providers available for this type")
