// Package oci pushes release files to an OCI registry as a single
// artifact: one layer per file, titled with the file name, under an OCI 1.1
// manifest tagged with the release tag.
package oci

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"path"
	"strings"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	rerrors "github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs"
	"github.com/iamd3vil/rlsr/oci/internal/oras"
)

// DefaultArtifactType is the manifest artifact type of release bundles.
const DefaultArtifactType = "application/vnd.rlsr.release.v1"

// Client pushes release artifacts. It is safe for concurrent use.
type Client struct {
	options    *ClientOptions
	orasClient oras.Client
	logger     *slog.Logger
}

// New creates a Client. Without auth options the docker credential store
// is used.
func New(opts ...ClientOption) (*Client, error) {
	options := &ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if a := options.Auth; a != nil && a.StaticRegistry != "" {
		if a.StaticUsername == "" || a.StaticPassword == "" {
			return nil, rerrors.New(rerrors.CodeInvalidConfig,
				"static username and password required when a static registry is specified")
		}
	}

	c := &Client{
		options:    options,
		orasClient: options.ORASClient,
		logger:     options.Logger,
	}
	if c.orasClient == nil {
		c.orasClient = &oras.DefaultClient{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Reference joins repository and tag.
func Reference(repository, tag string) string {
	return strings.TrimSuffix(repository, "/") + ":" + tag
}

// PushFiles reads files from fsys and pushes them as one artifact to
// reference, which must carry a tag. It returns the manifest digest.
func (c *Client) PushFiles(
	ctx context.Context,
	fsys fs.Filesystem,
	reference string,
	files []string,
	opts ...PushOption,
) (string, error) {
	pushOpts := DefaultPushOptions()
	for _, opt := range opts {
		opt(pushOpts)
	}

	if _, tag, isDigest := oras.SplitReference(reference); tag == "" || isDigest {
		return "", rerrors.WithContext(rerrors.New(rerrors.CodeInvalidInput, "reference must include a tag"),
			map[string]interface{}{"reference": reference})
	}
	if len(files) == 0 {
		return "", rerrors.New(rerrors.CodeInvalidInput, "no files to push")
	}

	artifact := &oras.Artifact{
		ArtifactType: pushOpts.ArtifactType,
		Annotations:  pushOpts.Annotations,
	}
	seen := make(map[string]struct{}, len(files))
	for _, p := range files {
		name := path.Base(p)
		if _, dup := seen[name]; dup {
			return "", rerrors.WithContext(rerrors.New(rerrors.CodeInvalidInput, "duplicate layer name"),
				map[string]interface{}{"name": name})
		}
		seen[name] = struct{}{}

		data, err := fsys.ReadFile(p)
		if err != nil {
			return "", rerrors.WrapWithContext(err, rerrors.CodeNotFound, "failed to read file",
				map[string]interface{}{"path": p})
		}
		artifact.Layers = append(artifact.Layers, oras.Layer{
			Name:      name,
			MediaType: MediaTypeFor(name),
			Data:      data,
		})
	}

	var desc ocispec.Descriptor
	err := retryOperation(ctx, pushOpts.MaxRetries, pushOpts.RetryDelay, func() error {
		var pushErr error
		desc, pushErr = c.orasClient.Push(ctx, reference, artifact, c.options.Auth)
		return pushErr
	})
	if err != nil {
		code := rerrors.CodeNetwork
		if errors.Is(err, oras.ErrUnauthorized) {
			code = rerrors.CodeUnauthorized
		}
		return "", rerrors.WrapWithContext(err, code, "failed to push artifact",
			map[string]interface{}{"reference": reference})
	}

	c.logger.Info("pushed OCI artifact", "reference", reference, "digest", desc.Digest.String(),
		"layers", len(artifact.Layers))
	return desc.Digest.String(), nil
}

// MediaTypeFor picks a layer media type from a file name.
func MediaTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return ocispec.MediaTypeImageLayerGzip
	case strings.HasSuffix(name, ".tar.zst"):
		return ocispec.MediaTypeImageLayerZstd
	case strings.HasSuffix(name, ".tar.lz4"):
		return "application/vnd.rlsr.layer.v1.tar+lz4"
	case strings.HasSuffix(name, ".zip"):
		return "application/zip"
	case strings.HasSuffix(name, ".txt"), strings.HasSuffix(name, ".md"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// retryOperation retries operation with exponential backoff while the
// failure looks transient.
func retryOperation(ctx context.Context, maxRetries int, delay time.Duration, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := delay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(backoff):
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}

	return lastErr
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, oras.ErrUnauthorized) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"internal server error",
		"bad gateway",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
