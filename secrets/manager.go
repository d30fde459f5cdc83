package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Manager resolves secrets against providers in registration order; the
// first provider holding a secret wins.
type Manager struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewManager creates a Manager with the given providers registered.
func NewManager(providers ...Provider) *Manager {
	m := &Manager{}
	for _, p := range providers {
		_ = m.RegisterProvider(p)
	}
	return m
}

// RegisterProvider appends provider to the resolution chain.
func (m *Manager) RegisterProvider(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.providers {
		if p.Name() == provider.Name() {
			return fmt.Errorf("provider with name %q already registered", provider.Name())
		}
	}
	m.providers = append(m.providers, provider)
	return nil
}

// Resolve returns the first value for ref found along the provider chain.
func (m *Manager) Resolve(ctx context.Context, ref SecretRef) (*Secret, error) {
	if ref.Path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrInvalidRef)
	}

	m.mu.RLock()
	providers := append([]Provider(nil), m.providers...)
	m.mu.RUnlock()

	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		secret, err := p.Resolve(ctx, ref)
		switch {
		case err == nil:
			return secret, nil
		case errors.Is(err, ErrSecretNotFound):
			continue
		default:
			return nil, NewProviderError(p.Name(), ref, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, ref.Path)
}

// ResolveAny tries each path in order and returns the first secret found.
// This models aliases such as GITHUB_TOKEN/GH_TOKEN.
func (m *Manager) ResolveAny(ctx context.Context, paths ...string) (*Secret, error) {
	for _, path := range paths {
		secret, err := m.Resolve(ctx, SecretRef{Path: path})
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: none of %s is set", ErrSecretNotFound, strings.Join(paths, ", "))
}
