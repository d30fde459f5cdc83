// Package env provides a secret provider backed by environment variables.
package env

import (
	"context"
	"fmt"
	"os"

	"github.com/iamd3vil/rlsr/secrets"
)

// Provider resolves a SecretRef path as an environment variable name.
// Empty variables count as unset.
type Provider struct {
	lookup func(string) (string, bool)
}

// Option configures a Provider.
type Option func(*Provider)

// WithLookup replaces os.LookupEnv, typically with a map in tests.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(p *Provider) {
		p.lookup = fn
	}
}

// New creates an environment provider.
func New(opts ...Option) *Provider {
	p := &Provider{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements secrets.Provider.
func (p *Provider) Name() string { return "env" }

// Resolve implements secrets.Provider.
func (p *Provider) Resolve(_ context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	v, ok := p.lookup(ref.Path)
	if !ok || v == "" {
		return nil, fmt.Errorf("%w: %s", secrets.ErrSecretNotFound, ref.Path)
	}
	return &secrets.Secret{Value: []byte(v), Name: ref.Path, Provider: p.Name()}, nil
}
