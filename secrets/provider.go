package secrets

import (
	"context"
	"errors"
	"fmt"
)

// ErrSecretNotFound is wrapped by every lookup that finds nothing. A
// provider returning it lets the Manager fall through to the next one.
var ErrSecretNotFound = errors.New("secret not found")

// ErrInvalidRef is returned for an empty or malformed reference.
var ErrInvalidRef = errors.New("invalid secret reference")

// Provider is a named secret backend.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref SecretRef) (*Secret, error)
}

// ProviderError is a backend failure other than a missing secret. It stops
// resolution instead of falling through.
type ProviderError struct {
	Provider string
	Ref      SecretRef
	Err      error
}

// NewProviderError attributes err to provider and ref.
func NewProviderError(provider string, ref SecretRef, err error) *ProviderError {
	return &ProviderError{Provider: provider, Ref: ref, Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("secrets: %s provider failed for %q: %v", e.Provider, e.Ref.Path, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err carries a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
