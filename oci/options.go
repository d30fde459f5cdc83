package oci

import (
	"context"
	"log/slog"
	"time"

	"oras.land/oras-go/v2/registry/remote/auth"

	"github.com/iamd3vil/rlsr/oci/internal/oras"
)

// ClientOptions contains configuration options for the Client.
type ClientOptions struct {
	// Auth options for ORAS operations. Nil uses the docker credential store.
	Auth *oras.AuthOptions

	// ORASClient allows injecting a custom ORAS client for testing.
	ORASClient oras.Client

	Logger *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*ClientOptions)

func (o *ClientOptions) auth() *oras.AuthOptions {
	if o.Auth == nil {
		o.Auth = &oras.AuthOptions{}
	}
	return o.Auth
}

// WithORASClient replaces the registry client, primarily for tests.
func WithORASClient(client oras.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.ORASClient = client
	}
}

// WithStaticAuth configures static credentials for one registry. Other
// registries still use the docker credential store.
func WithStaticAuth(registry, username, password string) ClientOption {
	return func(opts *ClientOptions) {
		a := opts.auth()
		a.StaticRegistry = registry
		a.StaticUsername = username
		a.StaticPassword = password
	}
}

// WithCredentialFunc replaces credential resolution for all registries.
func WithCredentialFunc(fn func(ctx context.Context, registry string) (auth.Credential, error)) ClientOption {
	return func(opts *ClientOptions) {
		opts.auth().CredentialFunc = fn
	}
}

// WithPlainHTTP talks to registries over HTTP, for local registries.
func WithPlainHTTP(plain bool) ClientOption {
	return func(opts *ClientOptions) {
		opts.auth().PlainHTTP = plain
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = logger
	}
}

// PushOptions contains options for a push.
type PushOptions struct {
	// Annotations are attached to the manifest.
	Annotations map[string]string

	// ArtifactType overrides DefaultArtifactType.
	ArtifactType string

	MaxRetries int
	RetryDelay time.Duration
}

// PushOption is a functional option for configuring pushes.
type PushOption func(*PushOptions)

// WithAnnotations adds manifest annotations.
func WithAnnotations(annotations map[string]string) PushOption {
	return func(opts *PushOptions) {
		for k, v := range annotations {
			opts.Annotations[k] = v
		}
	}
}

// WithArtifactType sets the manifest artifact type.
func WithArtifactType(t string) PushOption {
	return func(opts *PushOptions) {
		opts.ArtifactType = t
	}
}

// WithMaxRetries sets the maximum number of retries for network failures.
func WithMaxRetries(maxRetries int) PushOption {
	return func(opts *PushOptions) {
		opts.MaxRetries = maxRetries
	}
}

// WithRetryDelay sets the base delay between retries; it doubles per attempt.
func WithRetryDelay(delay time.Duration) PushOption {
	return func(opts *PushOptions) {
		opts.RetryDelay = delay
	}
}

// DefaultPushOptions returns the default push options.
func DefaultPushOptions() *PushOptions {
	return &PushOptions{
		Annotations:  make(map[string]string),
		ArtifactType: DefaultArtifactType,
		MaxRetries:   3,
		RetryDelay:   2 * time.Second,
	}
}
