package oci

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs/billy"
	"github.com/iamd3vil/rlsr/oci/internal/oras"
)

type fakeORAS struct {
	mu        sync.Mutex
	failures  []error
	calls     int
	reference string
	artifact  *oras.Artifact
	auth      *oras.AuthOptions
}

func (f *fakeORAS) Push(_ context.Context, reference string, art *oras.Artifact, opts *oras.AuthOptions) (ocispec.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reference, f.artifact, f.auth = reference, art, opts
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return ocispec.Descriptor{}, err
	}
	return ocispec.Descriptor{Digest: digest.FromString("manifest")}, nil
}

func distFS(t *testing.T) *billy.FS {
	t.Helper()
	fsys := billy.NewInMemoryFS()
	require.NoError(t, fsys.WriteFile("dist/app_linux.tar.gz", []byte("tgz"), 0o644))
	require.NoError(t, fsys.WriteFile("dist/app_windows.zip", []byte("zip"), 0o644))
	require.NoError(t, fsys.WriteFile("dist/checksums.txt", []byte("sums"), 0o644))
	return fsys
}

func TestPushFiles(t *testing.T) {
	fake := &fakeORAS{}
	c, err := New(WithORASClient(fake), WithPlainHTTP(true))
	require.NoError(t, err)

	dgst, err := c.PushFiles(context.Background(), distFS(t), "localhost:5000/acme/app:v1.0.0",
		[]string{"dist/app_linux.tar.gz", "dist/app_windows.zip", "dist/checksums.txt"},
		WithAnnotations(map[string]string{ocispec.AnnotationVersion: "v1.0.0"}))
	require.NoError(t, err)
	assert.Equal(t, digest.FromString("manifest").String(), dgst)

	assert.Equal(t, "localhost:5000/acme/app:v1.0.0", fake.reference)
	assert.True(t, fake.auth.PlainHTTP)
	assert.Equal(t, DefaultArtifactType, fake.artifact.ArtifactType)
	assert.Equal(t, "v1.0.0", fake.artifact.Annotations[ocispec.AnnotationVersion])

	require.Len(t, fake.artifact.Layers, 3)
	assert.Equal(t, "app_linux.tar.gz", fake.artifact.Layers[0].Name)
	assert.Equal(t, ocispec.MediaTypeImageLayerGzip, fake.artifact.Layers[0].MediaType)
	assert.Equal(t, []byte("zip"), fake.artifact.Layers[1].Data)
	assert.Equal(t, "checksums.txt", fake.artifact.Layers[2].Name)
}

func TestPushFiles_Validation(t *testing.T) {
	c, err := New(WithORASClient(&fakeORAS{}))
	require.NoError(t, err)
	fsys := distFS(t)

	_, err = c.PushFiles(context.Background(), fsys, "ghcr.io/acme/app", []string{"dist/checksums.txt"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	_, err = c.PushFiles(context.Background(), fsys, "ghcr.io/acme/app@sha256:abc", []string{"dist/checksums.txt"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	_, err = c.PushFiles(context.Background(), fsys, "ghcr.io/acme/app:v1", nil)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	require.NoError(t, fsys.WriteFile("other/checksums.txt", []byte("x"), 0o644))
	_, err = c.PushFiles(context.Background(), fsys, "ghcr.io/acme/app:v1",
		[]string{"dist/checksums.txt", "other/checksums.txt"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	_, err = c.PushFiles(context.Background(), fsys, "ghcr.io/acme/app:v1", []string{"dist/missing"})
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestPushFiles_RetriesTransientFailures(t *testing.T) {
	fake := &fakeORAS{failures: []error{fmt.Errorf("push: 503 service unavailable")}}
	c, err := New(WithORASClient(fake))
	require.NoError(t, err)

	_, err = c.PushFiles(context.Background(), distFS(t), "ghcr.io/acme/app:v1",
		[]string{"dist/checksums.txt"}, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestPushFiles_UnauthorizedIsNotRetried(t *testing.T) {
	fake := &fakeORAS{failures: []error{fmt.Errorf("push: %w", oras.ErrUnauthorized)}}
	c, err := New(WithORASClient(fake))
	require.NoError(t, err)

	_, err = c.PushFiles(context.Background(), distFS(t), "ghcr.io/acme/app:v1",
		[]string{"dist/checksums.txt"}, WithRetryDelay(time.Millisecond))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))
	assert.Equal(t, 1, fake.calls)
}

func TestNew_StaticAuthNeedsPassword(t *testing.T) {
	_, err := New(WithStaticAuth("ghcr.io", "user", ""))
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))

	c, err := New(WithStaticAuth("ghcr.io", "user", "pw"))
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io", c.options.Auth.StaticRegistry)
}

func TestMediaTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.tar.gz":      ocispec.MediaTypeImageLayerGzip,
		"a.tgz":         ocispec.MediaTypeImageLayerGzip,
		"a.tar.zst":     ocispec.MediaTypeImageLayerZstd,
		"a.zip":         "application/zip",
		"checksums.txt": "text/plain; charset=utf-8",
		"app.exe":       "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equal(t, want, MediaTypeFor(name), name)
	}
}

func TestReference(t *testing.T) {
	assert.Equal(t, "ghcr.io/acme/app:v1.2.3", Reference("ghcr.io/acme/app/", "v1.2.3"))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(fmt.Errorf("dial tcp: connection refused")))
	assert.True(t, isRetryableError(context.DeadlineExceeded))
	assert.False(t, isRetryableError(context.Canceled))
	assert.False(t, isRetryableError(fmt.Errorf("manifest invalid")))
}
