// Package oras isolates the ORAS dependency: repository construction with
// credentials, and pushing a set of files as one OCI 1.1 artifact.
package oras

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"
)

// ErrUnauthorized marks a push rejected for missing or bad credentials.
var ErrUnauthorized = errors.New("registry authentication failed")

// Client pushes artifacts to a registry.
type Client interface {
	Push(ctx context.Context, reference string, artifact *Artifact, opts *AuthOptions) (ocispec.Descriptor, error)
}

// DefaultClient implements Client against a remote registry.
type DefaultClient struct{}

var _ Client = (*DefaultClient)(nil)

// Layer is one file of an artifact.
type Layer struct {
	// Name becomes the layer's org.opencontainers.image.title annotation.
	Name      string
	MediaType string
	Data      []byte
}

// Artifact is a set of layers pushed under one manifest.
type Artifact struct {
	ArtifactType string
	Layers       []Layer
	Annotations  map[string]string
}

// AuthOptions configures credentials and transport for a push.
type AuthOptions struct {
	// StaticRegistry, StaticUsername and StaticPassword override the docker
	// credential store for one registry.
	StaticRegistry string
	StaticUsername string
	StaticPassword string

	// CredentialFunc replaces every other credential source.
	CredentialFunc auth.CredentialFunc

	// PlainHTTP talks to the registry without TLS.
	PlainHTTP bool

	// Insecure skips certificate verification.
	Insecure bool

	// Transport replaces the default HTTP transport.
	Transport http.RoundTripper
}

// Push implements Client.
func (c *DefaultClient) Push(
	ctx context.Context,
	reference string,
	artifact *Artifact,
	opts *AuthOptions,
) (ocispec.Descriptor, error) {
	repo, tag, err := NewRepository(reference, opts)
	if err != nil {
		return ocispec.Descriptor{}, mapORASError("push", reference, err)
	}
	desc, err := PushArtifact(ctx, repo, tag, artifact)
	if err != nil {
		return ocispec.Descriptor{}, mapORASError("push", reference, err)
	}
	return desc, nil
}

// NewRepository returns the repository for reference with credentials
// configured, and the tag part of the reference.
//
// Credentials come from, in order: opts.CredentialFunc, the static
// credentials in opts, and the docker credential store (config.json and
// its credential helpers).
func NewRepository(reference string, opts *AuthOptions) (*remote.Repository, string, error) {
	repoPath, tag, isDigest := SplitReference(reference)
	if repoPath == "" || tag == "" || isDigest {
		return nil, "", fmt.Errorf("reference must be <repository>:<tag>: %q", reference)
	}

	repo, err := remote.NewRepository(repoPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create repository: %w", err)
	}
	if opts == nil {
		opts = &AuthOptions{}
	}
	repo.PlainHTTP = opts.PlainHTTP

	transport := opts.Transport
	if transport == nil {
		transport = newDefaultTransport(opts.Insecure)
	}

	repo.Client = &auth.Client{
		Client:     &http.Client{Transport: transport},
		Cache:      auth.NewCache(),
		Credential: credentialFunc(opts),
	}
	return repo, tag, nil
}

func credentialFunc(opts *AuthOptions) auth.CredentialFunc {
	switch {
	case opts.CredentialFunc != nil:
		return opts.CredentialFunc
	case opts.StaticRegistry != "" && opts.StaticUsername != "":
		return auth.StaticCredential(opts.StaticRegistry, auth.Credential{
			Username: opts.StaticUsername,
			Password: opts.StaticPassword,
		})
	}

	store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
	if err != nil {
		// No readable docker config: anonymous access.
		return nil
	}
	return credentials.Credential(store)
}

func newDefaultTransport(insecure bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test registries
	}
	return t
}

// PushArtifact pushes every layer blob, packs an OCI 1.1 manifest with an
// empty config and tags it. Blobs the target already holds are skipped.
func PushArtifact(ctx context.Context, target oras.Target, tag string, art *Artifact) (ocispec.Descriptor, error) {
	if art == nil || len(art.Layers) == 0 {
		return ocispec.Descriptor{}, errors.New("artifact has no layers")
	}
	if art.ArtifactType == "" {
		return ocispec.Descriptor{}, errors.New("artifact type is required")
	}

	layers := make([]ocispec.Descriptor, 0, len(art.Layers))
	for _, l := range art.Layers {
		desc := content.NewDescriptorFromBytes(l.MediaType, l.Data)
		desc.Annotations = map[string]string{ocispec.AnnotationTitle: l.Name}
		err := target.Push(ctx, desc, bytes.NewReader(l.Data))
		if err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
			return ocispec.Descriptor{}, fmt.Errorf("push blob %s: %w", l.Name, err)
		}
		layers = append(layers, desc)
	}

	manDesc, err := oras.PackManifest(ctx, target, oras.PackManifestVersion1_1, art.ArtifactType,
		oras.PackManifestOptions{Layers: layers, ManifestAnnotations: art.Annotations})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("pack manifest: %w", err)
	}

	if tag != "" {
		if err := target.Tag(ctx, manDesc, tag); err != nil {
			return ocispec.Descriptor{}, fmt.Errorf("tag manifest: %w", err)
		}
	}
	return manDesc, nil
}

// SplitReference splits a full OCI reference into repository path and
// reference part (tag or digest).
//
//	localhost:5000/myrepo:latest -> ("localhost:5000/myrepo", "latest", false)
//	ghcr.io/org/name@sha256:abcd -> ("ghcr.io/org/name", "sha256:abcd", true)
func SplitReference(full string) (repoPath, refPart string, isDigest bool) {
	if full == "" {
		return "", "", false
	}
	lastSlash := strings.LastIndex(full, "/")
	if lastSlash == -1 {
		return full, "", false
	}
	head := full[:lastSlash]
	tail := full[lastSlash+1:]

	if at := strings.LastIndex(tail, "@"); at != -1 {
		return head + "/" + tail[:at], tail[at+1:], true
	}
	// Only the tail is searched so a registry port is never taken for a tag.
	if colon := strings.LastIndex(tail, ":"); colon != -1 {
		return head + "/" + tail[:colon], tail[colon+1:], false
	}
	return full, "", false
}

// mapORASError classifies registry failures.
func mapORASError(op, ref string, err error) error {
	if err == nil {
		return nil
	}

	var resp *errcode.ErrorResponse
	if errors.Is(err, auth.ErrBasicCredentialNotFound) ||
		(errors.As(err, &resp) && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden)) {
		return fmt.Errorf("%s %s: %w: %w", op, ref, ErrUnauthorized, err)
	}

	return fmt.Errorf("%s %s: %w", op, ref, err)
}
