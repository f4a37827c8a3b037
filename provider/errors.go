package provider

import (
	"errors"
	"fmt"
)

// ErrUnknownProvider is returned by Registry.Get for identifiers that are not
// part of the catalogue. This is a configuration defect, not a transient
// failure, and is never retried.
var ErrUnknownProvider = errors.New("unknown provider")

// NetworkError wraps a transport-level failure: the request never produced an
// HTTP status (connection refused, DNS failure, timeout). Terminal for the
// attempt, user-retryable.
type NetworkError struct {
	ProviderID string
	Err        error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.ProviderID, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProviderError is a non-2xx response from the provider. Message carries the
// provider-supplied error text verbatim where available, so the user can tell
// an auth failure from a rate limit.
type ProviderError struct {
	ProviderID string
	Status     int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (HTTP %d): %s", e.ProviderID, e.Status, e.Message)
}
