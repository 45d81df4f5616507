package providers

import (
	"errors"
	"fmt"

	"mailanon/pkg/platform/sentinel"
)

// ErrorCategory classifies why a directory lookup failed. The resolver logs
// it and counts refresh outcomes by it.
type ErrorCategory string

const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorProviderOutage ErrorCategory = "provider_outage"
	ErrorNotFound       ErrorCategory = "not_found"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorInternal       ErrorCategory = "internal"
)

// Transient reports whether a later run may succeed without operator action.
func (c ErrorCategory) Transient() bool {
	switch c {
	case ErrorTimeout, ErrorProviderOutage, ErrorRateLimited:
		return true
	default:
		return false
	}
}

// ProviderError is a categorized failure from one directory backend.
type ProviderError struct {
	Category   ErrorCategory
	ProviderID string
	Op         string
	Err        error
}

// NewProviderError records that op against providerID failed with cause.
// cause may be nil.
func NewProviderError(category ErrorCategory, providerID, op string, cause error) *ProviderError {
	return &ProviderError{Category: category, ProviderID: providerID, Op: op, Err: cause}
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("directory %s: %s (%s)", e.ProviderID, e.Op, e.Category)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets outage and not-found failures match the platform sentinels even
// when the backend did not wrap one itself.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case sentinel.ErrUnavailable:
		return e.Category == ErrorProviderOutage
	case sentinel.ErrNotFound:
		return e.Category == ErrorNotFound
	}
	return false
}

// IsRetryable reports whether err carries a transient category.
func IsRetryable(err error) bool {
	return CategoryOf(err).Transient()
}

// CategoryOf returns the category of the first ProviderError in err's chain,
// or ErrorInternal when there is none.
func CategoryOf(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}
