package secrets_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamd3vil/rlsr/secrets"
	"github.com/iamd3vil/rlsr/secrets/providers/env"
	"github.com/iamd3vil/rlsr/secrets/providers/memory"
)

type failingProvider struct{}

func (failingProvider) Name() string { return "broken" }

func (failingProvider) Resolve(context.Context, secrets.SecretRef) (*secrets.Secret, error) {
	return nil, errors.New("backend unreachable")
}

func mapLookup(m map[string]string) env.Option {
	return env.WithLookup(func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	})
}

func TestResolveAnyFallsBackToAlias(t *testing.T) {
	m := secrets.NewManager(env.New(mapLookup(map[string]string{"GH_TOKEN": "gh-secret"})))

	secret, err := m.ResolveAny(context.Background(), "GITHUB_TOKEN", "GH_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "gh-secret", secret.String())
	assert.Equal(t, "GH_TOKEN", secret.Name)
	assert.Equal(t, "env", secret.Provider)
}

func TestResolveAnyPrefersFirstPath(t *testing.T) {
	m := secrets.NewManager(env.New(mapLookup(map[string]string{
		"GITHUB_TOKEN": "primary",
		"GH_TOKEN":     "alias",
	})))

	secret, err := m.ResolveAny(context.Background(), "GITHUB_TOKEN", "GH_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "primary", secret.String())
}

func TestResolveNotFound(t *testing.T) {
	m := secrets.NewManager(env.New(mapLookup(map[string]string{"GITLAB_TOKEN": ""})))

	_, err := m.ResolveAny(context.Background(), "GITLAB_TOKEN")
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound, "empty variables count as unset")
}

func TestProviderChainOrder(t *testing.T) {
	m := secrets.NewManager(
		memory.New(map[string]string{"TOKEN": "from-memory"}),
		env.New(mapLookup(map[string]string{"TOKEN": "from-env", "OTHER": "x"})),
	)

	secret, err := m.Resolve(context.Background(), secrets.SecretRef{Path: "TOKEN"})
	require.NoError(t, err)
	assert.Equal(t, "from-memory", secret.String())

	secret, err = m.Resolve(context.Background(), secrets.SecretRef{Path: "OTHER"})
	require.NoError(t, err)
	assert.Equal(t, "env", secret.Provider)
}

func TestProviderErrorsStopResolution(t *testing.T) {
	m := secrets.NewManager(failingProvider{}, memory.New(map[string]string{"TOKEN": "x"}))

	_, err := m.Resolve(context.Background(), secrets.SecretRef{Path: "TOKEN"})
	require.Error(t, err)
	assert.True(t, secrets.IsProviderError(err))
	assert.Contains(t, err.Error(), "backend unreachable")
}

func TestRegisterProviderValidation(t *testing.T) {
	m := secrets.NewManager()
	require.NoError(t, m.RegisterProvider(memory.New(nil)))
	assert.Error(t, m.RegisterProvider(memory.New(nil)), "duplicate names are rejected")
	assert.Error(t, m.RegisterProvider(nil))

	_, err := m.Resolve(context.Background(), secrets.SecretRef{})
	assert.ErrorIs(t, err, secrets.ErrInvalidRef)
}

func TestSecretClearAndRedaction(t *testing.T) {
	p := memory.New(nil)
	require.NoError(t, p.Store(context.Background(), secrets.SecretRef{Path: "K"}, []byte("hunter2")))

	secret, err := p.Resolve(context.Background(), secrets.SecretRef{Path: "K"})
	require.NoError(t, err)
	assert.NotContains(t, fmt.Sprintf("%#v", secret), "hunter2")

	backing := secret.Value
	secret.Clear()
	assert.Empty(t, secret.String())
	assert.Equal(t, make([]byte, len(backing)), backing)
}
