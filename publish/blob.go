package publish

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
)

// Blob credential variables.
const (
	blobAccessKeyVar = "RLSR_BLOB_ACCESS_KEY"
	blobSecretKeyVar = "RLSR_BLOB_SECRET_KEY"
)

// ObjectStore is the part of an S3 client the blob target uses.
// *minio.Client implements it.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// BlobStoreFactory builds an ObjectStore for a target.
type BlobStoreFactory func(t *config.BlobTarget, accessKey, secretKey string) (ObjectStore, error)

func newMinioStore(t *config.BlobTarget, accessKey, secretKey string) (ObjectStore, error) {
	return minio.New(t.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:    !t.Insecure,
		Region:    t.Region,
		Transport: newBlobTransport(),
	})
}

func newBlobTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

type blobPublisher struct {
	d      *Dispatcher
	target *config.BlobTarget
}

func (p *blobPublisher) Name() string { return "blob" }

// Publish uploads assets, the manifest and the changelog under
// <prefix>/<tag>/ in the bucket. Existing objects are overwritten.
func (p *blobPublisher) Publish(ctx context.Context, in *Input) error {
	access, err := p.d.token(ctx, blobAccessKeyVar)
	if err != nil {
		return err
	}
	secret, err := p.d.token(ctx, blobSecretKeyVar)
	if err != nil {
		return err
	}
	store, err := p.d.blobStore(p.target, access, secret)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "failed to create blob client")
	}

	ok, err := store.BucketExists(ctx, p.target.Bucket)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeNetwork, "failed to check bucket",
			map[string]interface{}{"bucket": p.target.Bucket})
	}
	if !ok {
		return errors.WithContext(errors.New(errors.CodeNotFound, "bucket does not exist"),
			map[string]interface{}{"bucket": p.target.Bucket})
	}

	prefix, err := p.d.render(in, p.target.Prefix)
	if err != nil {
		return err
	}
	dir := ObjectDir(prefix, in.Run.Meta().Tag)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.d.uploadWorkers)
	for _, u := range uploads(in.Output, true) {
		g.Go(func() error {
			f, size, err := p.d.open(u)
			if err != nil {
				return err
			}
			defer f.Close()

			key := path.Join(dir, u.Name)
			if _, err := store.PutObject(gctx, p.target.Bucket, key, f, size,
				minio.PutObjectOptions{ContentType: contentType(u.Name)}); err != nil {
				return errors.WrapWithContext(err, errors.CodeNetwork, "failed to upload object",
					map[string]interface{}{"bucket": p.target.Bucket, "key": key})
			}
			p.d.logger.Debug("uploaded object", "bucket", p.target.Bucket, "key", key, "size", size)
			return nil
		})
	}
	return g.Wait()
}

// ObjectDir is the key prefix release files are stored under.
func ObjectDir(prefix, tag string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return tag
	}
	return prefix + "/" + tag
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".tar.zst"):
		return "application/zstd"
	case strings.HasSuffix(name, ".zip"):
		return "application/zip"
	case strings.HasSuffix(name, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(name, ".md"):
		return "text/markdown; charset=utf-8"
	}
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
