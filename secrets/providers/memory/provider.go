// Package memory provides an in-memory secret provider for tests and for
// credentials injected programmatically.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/iamd3vil/rlsr/secrets"
)

// Provider is a thread-safe in-memory secret store.
type Provider struct {
	mu    sync.RWMutex
	store map[string][]byte
}

// New creates a memory provider seeded with values.
func New(values map[string]string) *Provider {
	p := &Provider{store: make(map[string][]byte, len(values))}
	for k, v := range values {
		p.store[k] = []byte(v)
	}
	return p
}

// Name implements secrets.Provider.
func (p *Provider) Name() string { return "memory" }

// Store saves value under ref.Path, replacing any previous value.
func (p *Provider) Store(ctx context.Context, ref secrets.SecretRef, value []byte) error {
	if ref.Path == "" {
		return fmt.Errorf("%w: path cannot be empty", secrets.ErrInvalidRef)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.store[ref.Path] = append([]byte(nil), value...)
	return nil
}

// Resolve implements secrets.Provider. The returned value is a copy.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve operation cancelled: %w", ctx.Err())
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.store[ref.Path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", secrets.ErrSecretNotFound, ref.Path)
	}
	return &secrets.Secret{Value: append([]byte(nil), v...), Name: ref.Path, Provider: p.Name()}, nil
}
